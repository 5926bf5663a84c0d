package factory

import (
	"fmt"
	"net/http"

	"github.com/citydrop/dispatch/api/orders"
	"github.com/citydrop/dispatch/connectors"
	"github.com/citydrop/dispatch/core/logger"
)

const (
	IDHTTPAPI = "http_api"
)

var (
	errUnknownConnector = "unknown connector id: %s"
)

// NewOrderSource builds the order intake connector with the given id.
func NewOrderSource(id string, cfg orders.Config, handler http.Handler, log logger.Logger) (connectors.OrderSource, error) {
	switch id {
	case IDHTTPAPI:
		return orders.NewServer(cfg, handler, log), nil
	default:
		return nil, fmt.Errorf(errUnknownConnector, id)
	}
}

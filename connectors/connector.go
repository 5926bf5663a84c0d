// Package connectors defines the intake surfaces through which provider
// orders and control requests reach the dispatch core.
package connectors

import "context"

// OrderSource is an inbound connector feeding provider orders and
// cancellation requests into the dispatch core.
type OrderSource interface {
	// Start serves the connector until the context is cancelled.
	Start(ctx context.Context) error
	Close() error
}

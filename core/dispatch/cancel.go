package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/events"
	"github.com/citydrop/dispatch/core/logger"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/internal/eventbus"
)

// Canceller handles provider-requested cancellations. An order can only be
// cancelled while UNASSIGNED: once a driver has been proposed, the request
// is refused and the provider must wait for a rejection or timeout to
// return the order to a cancellable state.
type Canceller struct {
	orders store.OrderStore
	bus    eventbus.EventBus
	log    logger.Logger
	now    func() time.Time
}

// CancelResult reports the outcome of a cancellation request.
type CancelResult struct {
	Cancelled bool
	// Code explains a refusal: "already_assigned" when a driver currently
	// holds the order, "already_terminal" when the order already finished.
	Code string
}

// Cancel attempts to cancel the order. A refusal because of current state
// is a structured result, not an error; errors are reserved for unknown
// orders and store failures.
func (c *Canceller) Cancel(ctx context.Context, orderID string) (CancelResult, error) {
	err := c.orders.Cancel(ctx, orderID)
	if err == nil {
		o, gerr := c.orders.Get(ctx, orderID)
		if gerr != nil {
			// Without the provider id the callback is unroutable.
			c.log.Errorf("read back cancelled order %s, skipping provider callback: %v", orderID, gerr)
		} else {
			c.bus.Publish(events.ProviderCallback{
				OrderID:    orderID,
				ProviderID: o.ProviderID,
				Status:     model.StatusCancelled.String(),
				Time:       c.now(),
			})
		}
		c.log.Infof("order %s cancelled by provider request", orderID)
		return CancelResult{Cancelled: true}, nil
	}
	if !errors.Is(err, errs.ErrConflict) {
		return CancelResult{}, err
	}

	o, gerr := c.orders.Get(ctx, orderID)
	if gerr != nil {
		return CancelResult{}, gerr
	}
	code := "already_assigned"
	if o.Status.Terminal() {
		code = "already_terminal"
	}
	c.log.Infof("cancel of order %s refused: %s (status %s)", orderID, code, o.Status)
	return CancelResult{Cancelled: false, Code: code}, nil
}

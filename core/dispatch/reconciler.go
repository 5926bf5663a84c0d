package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/citydrop/dispatch/core/channel"
	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/events"
	"github.com/citydrop/dispatch/core/logger"
	"github.com/citydrop/dispatch/core/model"
	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/internal/eventbus"
)

// Reconciler validates driver status events against stored state, commits
// confirmed assignments and unwinds rejected ones. Mismatched owners are
// never applied: they raise an integrity alert and the update is dropped.
type Reconciler struct {
	orders  store.OrderStore
	locks   *LockManager
	bus     eventbus.EventBus
	metrics coremetrics.Sink
	log     logger.Logger
	now     func() time.Time
}

// HandleStatus processes one driver-originated event. Events without an
// order id are bulk statuses for an entire job and fan out to every order
// sharing the jobId.
func (r *Reconciler) HandleStatus(ctx context.Context, ev channel.StatusEvent) error {
	if ev.JobID == "" || ev.DriverID == "" {
		r.alert(ev, "", "event missing job or driver id")
		return errs.ErrIntegrity
	}
	if ev.OrderID != "" {
		return r.applyOne(ctx, ev.OrderID, ev)
	}
	orders, err := r.orders.ListByJob(ctx, ev.JobID)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		r.alert(ev, "", "no orders for job")
		return errs.ErrIntegrity
	}
	var firstErr error
	for _, o := range orders {
		if err := r.applyOne(ctx, o.ID, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Reconciler) applyOne(ctx context.Context, orderID string, ev channel.StatusEvent) error {
	o, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			r.alert(ev, orderID, "event references unknown order")
			return errs.ErrIntegrity
		}
		return err
	}
	if o.Status == model.StatusCancelled {
		// Cancellation raced with the driver acknowledgment.
		r.alert(ev, orderID, "driver event for cancelled order")
		r.recordAck(ev, orderID, "dropped")
		return errs.ErrIntegrity
	}

	switch ev.Type {
	case channel.EventAccepted:
		return r.applyAccepted(ctx, o, ev)
	case channel.EventRejected:
		return r.applyRejected(ctx, o, ev)
	case channel.EventStatusChange:
		return r.applyStatusChange(ctx, o, ev)
	default:
		r.alert(ev, orderID, fmt.Sprintf("unknown event type %q", ev.Type))
		return errs.ErrIntegrity
	}
}

func (r *Reconciler) applyAccepted(ctx context.Context, o model.Order, ev channel.StatusEvent) error {
	if o.JobID != ev.JobID || o.DriverID != ev.DriverID {
		r.alert(ev, o.ID, "accept from mismatched owner")
		return errs.ErrIntegrity
	}
	if err := r.orders.Accept(ctx, o.ID, ev.DriverID, ev.JobID); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// State moved between read and write; the sweeper or a
			// duplicate event won.
			r.alert(ev, o.ID, "accept lost race against state change")
			return errs.ErrIntegrity
		}
		return err
	}
	r.log.Infof("order %s accepted by driver %s (job %s)", o.ID, ev.DriverID, ev.JobID)
	r.recordAck(ev, o.ID, "accepted")
	return nil
}

func (r *Reconciler) applyRejected(ctx context.Context, o model.Order, ev channel.StatusEvent) error {
	if o.JobID != ev.JobID || o.DriverID != ev.DriverID {
		r.alert(ev, o.ID, "rejection from mismatched owner")
		return errs.ErrIntegrity
	}
	if err := r.orders.Release(ctx, o.ID, ev.JobID); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			r.log.Debugf("rejection of %s already resolved elsewhere", o.ID)
			return nil
		}
		return err
	}
	if err := r.locks.ReleaseOrders(ctx, ev.DriverID, []string{o.ID}); err != nil {
		r.log.Errorf("release lock order %s/%s: %v", ev.DriverID, o.ID, err)
	}
	// No provider callback on rejection: the order competes again in the
	// next ingest cycle, and expiry or cancellation eventually notifies
	// upstream if it is never picked up.
	r.bus.Publish(events.OrderRejected{OrderID: o.ID, DriverID: ev.DriverID, JobID: ev.JobID, Time: r.now()})
	r.log.Infof("order %s rejected by driver %s, returned to pool", o.ID, ev.DriverID)
	r.recordAck(ev, o.ID, "rejected")
	return nil
}

func (r *Reconciler) applyStatusChange(ctx context.Context, o model.Order, ev channel.StatusEvent) error {
	st, err := model.ParseStatus(ev.Status)
	if err != nil {
		r.alert(ev, o.ID, fmt.Sprintf("unparseable status %q", ev.Status))
		return errs.ErrIntegrity
	}
	if !st.Terminal() {
		// Progress updates are informational only.
		r.log.Debugf("order %s reported %s by driver %s", o.ID, st, ev.DriverID)
		return nil
	}
	if o.JobID != ev.JobID || o.DriverID != ev.DriverID {
		r.alert(ev, o.ID, "status change from mismatched owner")
		return errs.ErrIntegrity
	}
	if err := r.orders.Finish(ctx, o.ID, ev.DriverID, ev.JobID, st); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			r.alert(ev, o.ID, "terminal status lost race against state change")
			return errs.ErrIntegrity
		}
		return err
	}
	if err := r.locks.ReleaseOrders(ctx, ev.DriverID, []string{o.ID}); err != nil {
		r.log.Errorf("release lock order %s/%s: %v", ev.DriverID, o.ID, err)
	}
	r.bus.Publish(events.ProviderCallback{OrderID: o.ID, ProviderID: o.ProviderID, Status: st.String(), Time: r.now()})
	r.log.Infof("order %s finished as %s by driver %s", o.ID, st, ev.DriverID)
	r.recordAck(ev, o.ID, "status_change")
	return nil
}

func (r *Reconciler) alert(ev channel.StatusEvent, orderID, reason string) {
	r.log.Warnf("integrity alert: %s (order=%s driver=%s job=%s type=%s)",
		reason, orderID, ev.DriverID, ev.JobID, ev.Type)
	r.bus.Publish(events.IntegrityAlert{
		Reason:   reason,
		OrderID:  orderID,
		DriverID: ev.DriverID,
		JobID:    ev.JobID,
		Time:     r.now(),
	})
}

func (r *Reconciler) recordAck(ev channel.StatusEvent, orderID, outcome string) {
	if rec, ok := r.metrics.(coremetrics.AckRecorder); ok {
		if err := rec.RecordAck(coremetrics.AckRecord{
			OrderID:  orderID,
			DriverID: ev.DriverID,
			JobID:    ev.JobID,
			Outcome:  outcome,
			Time:     r.now(),
		}); err != nil {
			r.log.Errorf("ack metrics error: %v", err)
		}
	}
}

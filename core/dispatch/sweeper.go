package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/events"
	"github.com/citydrop/dispatch/core/logger"
	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/internal/eventbus"
)

// Sweeper periodically reclaims stale state: ASSIGNED orders whose driver
// never acknowledged within the deadline go back to the pool, and
// UNASSIGNED orders past their expiry are cancelled. Every reclaim is a
// conditional write, so a sweep racing a late acknowledgment simply loses
// and moves on.
type Sweeper struct {
	orders      store.OrderStore
	locks       *LockManager
	bus         eventbus.EventBus
	metrics     coremetrics.Sink
	log         logger.Logger
	ackDeadline time.Duration
	now         func() time.Time
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Released  int
	Cancelled int
}

// Sweep runs one full pass and returns what it reclaimed.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := s.now()
	var res SweepResult

	assigned, err := s.orders.ListByStatus(ctx, model.StatusAssigned)
	if err != nil {
		return res, err
	}
	for _, o := range assigned {
		if !o.AckOverdue(start, s.ackDeadline) {
			continue
		}
		if err := s.orders.Release(ctx, o.ID, o.JobID); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				// Acknowledged between list and write.
				s.log.Debugf("order %s moved before timeout release, skipping", o.ID)
				continue
			}
			return res, err
		}
		if err := s.locks.ReleaseOrders(ctx, o.DriverID, []string{o.ID}); err != nil {
			s.log.Errorf("release lock order %s/%s: %v", o.DriverID, o.ID, err)
		}
		s.log.Warnf("order %s reclaimed from driver %s after ack timeout (job %s)", o.ID, o.DriverID, o.JobID)
		res.Released++
	}

	unassigned, err := s.orders.ListByStatus(ctx, model.StatusUnassigned)
	if err != nil {
		return res, err
	}
	for _, o := range unassigned {
		if !o.Expired(start) {
			continue
		}
		if err := s.orders.Cancel(ctx, o.ID); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				s.log.Debugf("order %s assigned before expiry cancel, skipping", o.ID)
				continue
			}
			return res, err
		}
		s.bus.Publish(events.ProviderCallback{
			OrderID:    o.ID,
			ProviderID: o.ProviderID,
			Status:     model.StatusCancelled.String(),
			Time:       s.now(),
		})
		s.log.Infof("order %s expired, cancelled", o.ID)
		res.Cancelled++
	}

	s.bus.Publish(events.SweepCompleted{Released: res.Released, Cancelled: res.Cancelled, Time: s.now()})
	if rec, ok := s.metrics.(coremetrics.SweepRecorder); ok {
		if err := rec.RecordSweep(coremetrics.SweepRecord{
			Released:  res.Released,
			Cancelled: res.Cancelled,
			Duration:  s.now().Sub(start),
			Time:      s.now(),
		}); err != nil {
			s.log.Errorf("sweep metrics error: %v", err)
		}
	}
	if res.Released > 0 || res.Cancelled > 0 {
		s.log.Infof("sweep released %d and cancelled %d orders", res.Released, res.Cancelled)
	}
	return res, nil
}

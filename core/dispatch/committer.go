package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/citydrop/dispatch/core/channel"
	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/events"
	"github.com/citydrop/dispatch/core/logger"
	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/solver"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/internal/eventbus"
)

// Committer transitions orders from UNASSIGNED to ASSIGNED under an
// acquired driver lock and pushes the resulting job to the driver.
type Committer struct {
	orders  store.OrderStore
	locks   *LockManager
	channel channel.Channel
	bus     eventbus.EventBus
	metrics coremetrics.Sink
	log     logger.Logger
	now     func() time.Time
}

// CommitResult reports which orders of a proposal were actually committed.
type CommitResult struct {
	JobID     string
	Committed []string
	Skipped   []string
	Published bool
}

// Commit writes ASSIGNED for every order of the proposal that is still
// UNASSIGNED, excludes the ones lost to concurrent batches, and publishes
// the job containing only the committed set. The caller must hold the
// driver lock. A publish failure is surfaced but the committed orders stay
// ASSIGNED; the sweeper's timeout path reclaims them.
func (c *Committer) Commit(ctx context.Context, asn solver.Assignment, jobID string) (CommitResult, error) {
	res := CommitResult{JobID: jobID}
	assignedAt := c.now().UnixMilli()
	for _, id := range asn.OrderIDs {
		err := c.orders.Assign(ctx, id, store.Assignment{
			DriverID:       asn.DriverID,
			DriverIdentity: asn.DriverIdentity,
			JobID:          jobID,
			AssignedAt:     assignedAt,
		})
		switch {
		case err == nil:
			res.Committed = append(res.Committed, id)
		case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrNotFound):
			c.log.Warnf("order %s lost to a concurrent batch, excluding from job %s", id, jobID)
			res.Skipped = append(res.Skipped, id)
		default:
			return res, err
		}
	}

	if len(res.Committed) == 0 {
		// Nothing won; free the driver for the next cycle.
		if err := c.locks.Release(ctx, asn.DriverID); err != nil {
			c.log.Errorf("release driver %s after empty commit: %v", asn.DriverID, err)
		}
		c.record(res, asn)
		return res, nil
	}
	if len(res.Skipped) > 0 {
		if err := c.locks.ReleaseOrders(ctx, asn.DriverID, res.Skipped); err != nil {
			c.log.Errorf("trim lock of driver %s: %v", asn.DriverID, err)
		}
	}

	job := channel.JobMessage{
		JobID:    jobID,
		OrderIDs: res.Committed,
		Route:    asn.Route,
		SentAt:   assignedAt,
	}
	if err := c.channel.PublishJob(asn.DriverID, job); err != nil {
		c.log.Errorf("publish job %s to driver %s failed, sweeper will reclaim: %v", jobID, asn.DriverID, err)
		c.record(res, asn)
		return res, err
	}
	res.Published = true

	for _, id := range res.Committed {
		c.bus.Publish(events.OrderFulfilled{
			OrderID:  id,
			DriverID: asn.DriverID,
			JobID:    jobID,
			Time:     c.now(),
		})
	}
	c.log.Infof("committed job %s: driver %s, %d orders (%d skipped)",
		jobID, asn.DriverID, len(res.Committed), len(res.Skipped))
	c.record(res, asn)
	return res, nil
}

func (c *Committer) record(res CommitResult, asn solver.Assignment) {
	recs := make([]coremetrics.AssignmentRecord, 0, len(res.Committed)+len(res.Skipped))
	for _, id := range res.Committed {
		recs = append(recs, coremetrics.AssignmentRecord{
			OrderID: id, DriverID: asn.DriverID, JobID: res.JobID, Committed: true, Time: c.now(),
		})
	}
	for _, id := range res.Skipped {
		recs = append(recs, coremetrics.AssignmentRecord{
			OrderID: id, DriverID: asn.DriverID, JobID: res.JobID, Committed: false, Time: c.now(),
		})
	}
	if len(recs) == 0 {
		return
	}
	if err := c.metrics.RecordAssignments(recs); err != nil {
		c.log.Errorf("metrics error: %v", err)
	}
}

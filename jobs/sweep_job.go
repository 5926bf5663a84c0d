package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/citydrop/dispatch/core/dispatch"
	"github.com/citydrop/dispatch/core/logger"
)

// SweepJob periodically reclaims overdue assignments and cancels expired
// orders.
type SweepJob struct {
	mgr      *dispatch.Manager
	cron     *cron.Cron
	interval time.Duration
	log      logger.Logger
}

// NewSweepJob creates a sweep job with the given cadence.
func NewSweepJob(mgr *dispatch.Manager, interval time.Duration, log logger.Logger) *SweepJob {
	return &SweepJob{
		mgr:      mgr,
		cron:     cron.New(),
		interval: interval,
		log:      log,
	}
}

// Start schedules the job.
func (j *SweepJob) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.interval)
		defer cancel()
		if _, err := j.mgr.Sweep(ctx); err != nil {
			j.log.Errorf("sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.log.Infof("sweep job started (every %s)", j.interval)
	return nil
}

// Stop stops the job.
func (j *SweepJob) Stop() {
	j.cron.Stop()
	j.log.Infof("sweep job stopped")
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/citydrop/dispatch/core/dispatch"
	"github.com/citydrop/dispatch/core/logger"
)

// IngestJob periodically runs a batching cycle over the unassigned pool.
type IngestJob struct {
	mgr      *dispatch.Manager
	cron     *cron.Cron
	interval time.Duration
	log      logger.Logger
}

// NewIngestJob creates an ingest job with the given cadence.
func NewIngestJob(mgr *dispatch.Manager, interval time.Duration, log logger.Logger) *IngestJob {
	return &IngestJob{
		mgr:      mgr,
		cron:     cron.New(),
		interval: interval,
		log:      log,
	}
}

// Start schedules the job.
func (j *IngestJob) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.interval)
		defer cancel()
		res, err := j.mgr.Ingest(ctx)
		if err != nil {
			j.log.Errorf("ingest cycle failed: %v", err)
			return
		}
		if res.Batched > 0 {
			j.log.Infof("ingest cycle: batch %s, %d orders, %d committed", res.BatchID, res.Batched, res.Committed)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.log.Infof("ingest job started (every %s)", j.interval)
	return nil
}

// Stop stops the job.
func (j *IngestJob) Stop() {
	j.cron.Stop()
	j.log.Infof("ingest job stopped")
}

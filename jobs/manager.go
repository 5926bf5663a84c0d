// Package jobs provides the scheduled background tasks of the dispatch
// service: the periodic ingest cycle and the stale-state sweep.
package jobs

import (
	"fmt"
	"time"

	"github.com/citydrop/dispatch/core/dispatch"
	"github.com/citydrop/dispatch/core/logger"
)

// Manager coordinates the scheduled jobs and provides a unified interface
// to start and stop them.
type Manager struct {
	ingest *IngestJob
	sweep  *SweepJob
}

// NewManager creates a job manager wired to the dispatch manager.
func NewManager(mgr *dispatch.Manager, cfg dispatch.Config, log logger.Logger) *Manager {
	return &Manager{
		ingest: NewIngestJob(mgr, time.Duration(cfg.IngestIntervalSeconds)*time.Second, log),
		sweep:  NewSweepJob(mgr, time.Duration(cfg.SweepIntervalSeconds)*time.Second, log),
	}
}

// StartAll starts all scheduled jobs. Jobs already started are stopped
// again when a later one fails.
func (m *Manager) StartAll() error {
	if err := m.ingest.Start(); err != nil {
		return fmt.Errorf("start ingest job: %w", err)
	}
	if err := m.sweep.Start(); err != nil {
		m.ingest.Stop()
		return fmt.Errorf("start sweep job: %w", err)
	}
	return nil
}

// StopAll stops all scheduled jobs.
func (m *Manager) StopAll() {
	m.sweep.Stop()
	m.ingest.Stop()
}

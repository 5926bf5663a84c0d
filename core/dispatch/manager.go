package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/citydrop/dispatch/core/channel"
	"github.com/citydrop/dispatch/core/logger"
	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/solver"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/internal/eventbus"
)

// Manager wires the dispatch components over shared stores and exposes the
// operations triggered from the outside: ingest cycles, sweeps, driver
// events and cancellations.
type Manager struct {
	ingestor   *Ingestor
	reconciler *Reconciler
	sweeper    *Sweeper
	canceller  *Canceller
	channel    channel.Channel
	bus        eventbus.EventBus
	log        logger.Logger
}

// NewManager creates a Manager. A nil sink disables metrics.
func NewManager(cfg Config, orders store.OrderStore, locks store.LockStore, solverClient solver.Client, ch channel.Channel, bus eventbus.EventBus, sink coremetrics.Sink, log logger.Logger) (*Manager, error) {
	if orders == nil || locks == nil || solverClient == nil || ch == nil || bus == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewManager")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	now := time.Now

	lockMgr := NewLockManager(locks, log)
	committer := &Committer{
		orders:  orders,
		locks:   lockMgr,
		channel: ch,
		bus:     bus,
		metrics: sink,
		log:     log,
		now:     now,
	}
	return &Manager{
		ingestor: &Ingestor{
			orders:    orders,
			locks:     lockMgr,
			solver:    solverClient,
			committer: committer,
			metrics:   sink,
			log:       log,
			cfg:       cfg,
			now:       now,
		},
		reconciler: &Reconciler{
			orders:  orders,
			locks:   lockMgr,
			bus:     bus,
			metrics: sink,
			log:     log,
			now:     now,
		},
		sweeper: &Sweeper{
			orders:      orders,
			locks:       lockMgr,
			bus:         bus,
			metrics:     sink,
			log:         log,
			ackDeadline: time.Duration(cfg.AckDeadlineSeconds) * time.Second,
			now:         now,
		},
		canceller: &Canceller{orders: orders, bus: bus, log: log, now: now},
		channel:   ch,
		bus:       bus,
		log:       log,
	}, nil
}

// Start subscribes the reconciler to the driver channel. Events are applied
// synchronously in the channel's delivery goroutine.
func (m *Manager) Start(ctx context.Context) error {
	return m.channel.SubscribeStatus(func(ev channel.StatusEvent) {
		if err := m.reconciler.HandleStatus(ctx, ev); err != nil {
			m.log.Debugf("status event dropped: %v", err)
		}
	})
}

// Ingest runs one batching cycle.
func (m *Manager) Ingest(ctx context.Context) (IngestResult, error) {
	return m.ingestor.RunCycle(ctx)
}

// Sweep runs one sweeper pass.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	return m.sweeper.Sweep(ctx)
}

// Cancel processes a provider cancellation request.
func (m *Manager) Cancel(ctx context.Context, orderID string) (CancelResult, error) {
	return m.canceller.Cancel(ctx, orderID)
}

// HandleStatus applies one driver event. Exposed for triggers that receive
// events outside the subscribed channel.
func (m *Manager) HandleStatus(ctx context.Context, ev channel.StatusEvent) error {
	return m.reconciler.HandleStatus(ctx, ev)
}

// Close releases resources held by the manager.
func (m *Manager) Close() error {
	m.bus.Close()
	return m.channel.Close()
}

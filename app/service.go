package app

import (
	"context"
	"fmt"

	"github.com/citydrop/dispatch/api/orders"
	"github.com/citydrop/dispatch/config"
	"github.com/citydrop/dispatch/connectors"
	"github.com/citydrop/dispatch/connectors/factory"
	"github.com/citydrop/dispatch/core/dispatch"
	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/infra/logger"
	"github.com/citydrop/dispatch/infra/memstore"
	"github.com/citydrop/dispatch/infra/metrics"
	"github.com/citydrop/dispatch/infra/mqtt"
	"github.com/citydrop/dispatch/infra/solver"
	"github.com/citydrop/dispatch/infra/sqlitestore"
	"github.com/citydrop/dispatch/internal/eventbus"
	"github.com/citydrop/dispatch/jobs"
)

// Service wires the stores, the driver channel, the solver client and the
// dispatch manager, and runs the scheduled jobs.
type Service struct {
	Manager     *dispatch.Manager
	jobs        *jobs.Manager
	api         connectors.OrderSource
	orders      store.OrderStore
	bus         eventbus.EventBus
	log         logger.Logger
	closers     []func() error
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var (
		orderStore store.OrderStore
		lockStore  store.LockStore
		closers    []func() error
	)
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		orderStore, lockStore = db.Orders(), db.Locks()
		closers = append(closers, db.Close)
	default:
		db := memstore.New()
		orderStore, lockStore = db.Orders(), db.Locks()
	}

	ch, err := mqtt.NewPahoChannel(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt channel: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	solverClient := solver.NewHTTPClient(cfg.Solver)

	manager, err := dispatch.NewManager(cfg.Dispatch, orderStore, lockStore, solverClient, ch, bus, sink, logg)
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}

	svc := &Service{
		Manager:     manager,
		jobs:        jobs.NewManager(manager, cfg.Dispatch, logg),
		orders:      orderStore,
		bus:         bus,
		log:         logg,
		closers:     closers,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}
	if cfg.API.Enabled {
		handler := orders.NewHandler(orderStore, manager, cfg.API.Token)
		src, err := factory.NewOrderSource(factory.IDHTTPAPI, cfg.API, handler, logg)
		if err != nil {
			return nil, fmt.Errorf("order api: %w", err)
		}
		svc.api = src
	}
	return svc, nil
}

// Orders exposes the order store for one-shot commands.
func (s *Service) Orders() store.OrderStore { return s.orders }

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Manager.Start(ctx); err != nil {
		return fmt.Errorf("subscribe driver channel: %w", err)
	}
	if err := s.jobs.StartAll(); err != nil {
		return err
	}
	if s.api != nil {
		go func() {
			if err := s.api.Start(ctx); err != nil {
				s.log.Errorf("order api: %v", err)
			}
		}()
	}
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	s.jobs.StopAll()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	err := s.Manager.Close()
	if s.api != nil {
		if aerr := s.api.Close(); aerr != nil && err == nil {
			err = aerr
		}
	}
	for _, c := range s.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/citydrop/dispatch/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	acks        *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	solver      *prometheus.HistogramVec
}

// NewPromSink registers dispatch metrics on the provided Prometheus
// registerer. If reg is nil, the default registerer is used. If the
// collectors are already registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Total number of per-order assignment commit attempts",
	}, []string{"driver_id", "committed"})
	acks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_acks_total",
		Help: "Total number of reconciled driver events by outcome",
	}, []string{"outcome"})
	sweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_sweep_orders_total",
		Help: "Orders reclaimed by the sweeper",
	}, []string{"action"})
	solver := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_solver_latency_seconds",
		Help:    "Time between solver submission and final state",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})

	sink := &PromSink{assignments: assignments, acks: acks, sweeps: sweeps, solver: solver}
	for _, c := range []prometheus.Collector{assignments, acks, sweeps, solver} {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch existing := are.ExistingCollector.(type) {
			case *prometheus.CounterVec:
				switch c {
				case assignments:
					sink.assignments = existing
				case acks:
					sink.acks = existing
				case sweeps:
					sink.sweeps = existing
				}
			case *prometheus.HistogramVec:
				sink.solver = existing
			}
		}
	}
	return sink, nil
}

// RecordAssignments increments the counter for each commit attempt.
func (s *PromSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.assignments.WithLabelValues(r.DriverID, strconv.FormatBool(r.Committed)).Inc()
	}
	return nil
}

// RecordAck counts a reconciled driver event.
func (s *PromSink) RecordAck(rec coremetrics.AckRecord) error {
	s.acks.WithLabelValues(rec.Outcome).Inc()
	return nil
}

// RecordSweep counts released and cancelled orders of a sweeper pass.
func (s *PromSink) RecordSweep(rec coremetrics.SweepRecord) error {
	s.sweeps.WithLabelValues("released").Add(float64(rec.Released))
	s.sweeps.WithLabelValues("cancelled").Add(float64(rec.Cancelled))
	return nil
}

// RecordSolver observes the solver round-trip latency.
func (s *PromSink) RecordSolver(rec coremetrics.SolverRecord) error {
	s.solver.WithLabelValues(rec.State).Observe(rec.Latency.Seconds())
	return nil
}

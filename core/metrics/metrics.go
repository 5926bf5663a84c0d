package metrics

import "time"

// AssignmentRecord represents a per-order commit attempt to be recorded.
type AssignmentRecord struct {
	OrderID   string
	DriverID  string
	JobID     string
	BatchID   string
	Committed bool
	Time      time.Time
}

// Sink records assignment results for observability purposes.
type Sink interface {
	RecordAssignments(recs []AssignmentRecord) error
}

// AckRecord captures a reconciled driver acknowledgment.
type AckRecord struct {
	OrderID  string
	DriverID string
	JobID    string
	Outcome  string // accepted, rejected, status_change, dropped
	Time     time.Time
}

// AckRecorder records reconciled driver events.
type AckRecorder interface {
	RecordAck(rec AckRecord) error
}

// SweepRecord summarizes one sweeper pass.
type SweepRecord struct {
	Released  int
	Cancelled int
	Duration  time.Duration
	Time      time.Time
}

// SweepRecorder records sweeper passes.
type SweepRecorder interface {
	RecordSweep(rec SweepRecord) error
}

// SolverRecord captures one solver round trip.
type SolverRecord struct {
	ProblemID string
	State     string
	Orders    int
	Drivers   int
	Latency   time.Duration
	Time      time.Time
}

// SolverRecorder records solver submissions and poll outcomes.
type SolverRecorder interface {
	RecordSolver(rec SolverRecord) error
}

// Config defines metrics-related settings.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAssignments([]AssignmentRecord) error { return nil }
func (NopSink) RecordAck(AckRecord) error                  { return nil }
func (NopSink) RecordSweep(SweepRecord) error              { return nil }
func (NopSink) RecordSolver(SolverRecord) error            { return nil }

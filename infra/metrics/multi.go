package metrics

import coremetrics "github.com/citydrop/dispatch/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignments forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignments(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordAck forwards the record when supported by the sink.
func (m *MultiSink) RecordAck(rec coremetrics.AckRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.AckRecorder); ok {
			if err := r.RecordAck(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSweep forwards the record when supported by the sink.
func (m *MultiSink) RecordSweep(rec coremetrics.SweepRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.SweepRecorder); ok {
			if err := r.RecordSweep(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSolver forwards the record when supported by the sink.
func (m *MultiSink) RecordSolver(rec coremetrics.SolverRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.SolverRecorder); ok {
			if err := r.RecordSolver(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

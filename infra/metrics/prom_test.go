package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/citydrop/dispatch/core/metrics"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	err = sink.RecordAssignments([]coremetrics.AssignmentRecord{
		{OrderID: "o1", DriverID: "d1", Committed: true, Time: time.Now()},
		{OrderID: "o2", DriverID: "d1", Committed: false, Time: time.Now()},
	})
	if err != nil {
		t.Fatalf("record assignments: %v", err)
	}
	if got := testutil.ToFloat64(sink.assignments.WithLabelValues("d1", "true")); got != 1 {
		t.Fatalf("committed counter = %v", got)
	}
	if got := testutil.ToFloat64(sink.assignments.WithLabelValues("d1", "false")); got != 1 {
		t.Fatalf("uncommitted counter = %v", got)
	}

	if err := sink.RecordAck(coremetrics.AckRecord{Outcome: "accepted"}); err != nil {
		t.Fatalf("record ack: %v", err)
	}
	if got := testutil.ToFloat64(sink.acks.WithLabelValues("accepted")); got != 1 {
		t.Fatalf("ack counter = %v", got)
	}

	if err := sink.RecordSweep(coremetrics.SweepRecord{Released: 3, Cancelled: 1}); err != nil {
		t.Fatalf("record sweep: %v", err)
	}
	if got := testutil.ToFloat64(sink.sweeps.WithLabelValues("released")); got != 3 {
		t.Fatalf("sweep released = %v", got)
	}
}

func TestPromSinkReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSink(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewPromSink(reg); err != nil {
		t.Fatalf("second registration must reuse collectors: %v", err)
	}
}

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	coremetrics "github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/solver"
	"github.com/citydrop/dispatch/core/store"
	"github.com/citydrop/dispatch/infra/logger"
	"github.com/citydrop/dispatch/infra/memstore"
	"github.com/citydrop/dispatch/infra/mqtt"
	"github.com/citydrop/dispatch/internal/eventbus"
)

func newCommitter(db *memstore.DB, ch *mqtt.MockChannel, sink coremetrics.Sink) *Committer {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Committer{
		orders:  db.Orders(),
		locks:   NewLockManager(db.Locks(), logger.NopLogger{}),
		channel: ch,
		bus:     eventbus.New(),
		metrics: sink,
		log:     logger.NopLogger{},
		now:     time.Now,
	}
}

func TestCommit_SkipsOrdersLostToConcurrentBatch(t *testing.T) {
	db := memstore.New()
	ch := mqtt.NewMockChannel()
	ctx := context.Background()
	for _, id := range []string{"o1", "o2"} {
		if err := db.Orders().Create(ctx, model.Order{ID: id}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// o2 already went to another driver in a concurrent cycle.
	if err := db.Orders().Assign(ctx, "o2", storeAssignment("d9", "j9")); err != nil {
		t.Fatalf("pre-assign: %v", err)
	}
	if err := db.Locks().Acquire(ctx, "d1", []string{"o1", "o2"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	c := newCommitter(db, ch, nil)
	res, err := c.Commit(ctx, solver.Assignment{DriverID: "d1", OrderIDs: []string{"o1", "o2"}}, "j1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(res.Committed) != 1 || res.Committed[0] != "o1" {
		t.Fatalf("committed %v", res.Committed)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "o2" {
		t.Fatalf("skipped %v", res.Skipped)
	}
	job, ok := ch.LastJob("d1")
	if !ok || len(job.OrderIDs) != 1 || job.OrderIDs[0] != "o1" {
		t.Fatalf("job must carry only committed orders: %+v", job)
	}
	lock, err := db.Locks().Get(ctx, "d1")
	if err != nil {
		t.Fatalf("lock get: %v", err)
	}
	if !lock.Holds("o1") || lock.Holds("o2") {
		t.Fatalf("lock not trimmed: %+v", lock)
	}
}

func TestCommit_EmptyCommitReleasesDriver(t *testing.T) {
	db := memstore.New()
	ch := mqtt.NewMockChannel()
	ctx := context.Background()
	if err := db.Orders().Create(ctx, model.Order{ID: "o1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Orders().Assign(ctx, "o1", storeAssignment("d9", "j9")); err != nil {
		t.Fatalf("pre-assign: %v", err)
	}
	if err := db.Locks().Acquire(ctx, "d1", []string{"o1"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	c := newCommitter(db, ch, nil)
	res, err := c.Commit(ctx, solver.Assignment{DriverID: "d1", OrderIDs: []string{"o1"}}, "j1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(res.Committed) != 0 || res.Published {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ch.Published != 0 {
		t.Fatal("no job must be published for an empty commit")
	}
	if lock, err := db.Locks().Get(ctx, "d1"); err == nil && lock.Locked {
		t.Fatalf("driver d1 must be free: %+v", lock)
	}
}

func TestCommit_PublishFailureKeepsOrdersAssigned(t *testing.T) {
	db := memstore.New()
	ch := mqtt.NewMockChannel()
	ch.FailIDs["d1"] = true
	ctx := context.Background()
	if err := db.Orders().Create(ctx, model.Order{ID: "o1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Locks().Acquire(ctx, "d1", []string{"o1"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	c := newCommitter(db, ch, nil)
	res, err := c.Commit(ctx, solver.Assignment{DriverID: "d1", OrderIDs: []string{"o1"}}, "j1")
	if err == nil {
		t.Fatal("expected publish error")
	}
	if res.Published {
		t.Fatalf("published flag must be false: %+v", res)
	}
	// Orders stay ASSIGNED so the ack-timeout sweep reclaims them.
	o, gerr := db.Orders().Get(ctx, "o1")
	if gerr != nil || o.Status != model.StatusAssigned {
		t.Fatalf("order must remain assigned: %v %+v", gerr, o)
	}
	lock, gerr := db.Locks().Get(ctx, "d1")
	if gerr != nil || !lock.Locked {
		t.Fatalf("lock must be held until the sweep: %v %+v", gerr, lock)
	}
}

func TestCommit_ConcurrentProposalsExactlyOneWinner(t *testing.T) {
	db := memstore.New()
	ctx := context.Background()
	if err := db.Orders().Create(ctx, model.Order{ID: "o1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const drivers = 8
	var wg sync.WaitGroup
	wins := make([]bool, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			driverID := string(rune('a' + n))
			c := newCommitter(db, mqtt.NewMockChannel(), nil)
			if err := c.locks.Acquire(ctx, driverID, []string{"o1"}); err != nil {
				return
			}
			res, err := c.Commit(ctx, solver.Assignment{DriverID: driverID, OrderIDs: []string{"o1"}}, "j1")
			if err == nil && len(res.Committed) == 1 {
				wins[n] = true
			}
		}(i)
	}
	wg.Wait()

	var winners int
	for _, w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	o, err := db.Orders().Get(ctx, "o1")
	if err != nil || o.Status != model.StatusAssigned {
		t.Fatalf("order must be assigned once: %v %+v", err, o)
	}
}

func TestCommit_RecordsMetrics(t *testing.T) {
	db := memstore.New()
	ch := mqtt.NewMockChannel()
	ctx := context.Background()
	if err := db.Orders().Create(ctx, model.Order{ID: "o1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Locks().Acquire(ctx, "d1", []string{"o1"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	sink := &captureSink{}
	c := newCommitter(db, ch, sink)
	if _, err := c.Commit(ctx, solver.Assignment{DriverID: "d1", OrderIDs: []string{"o1"}}, "j1"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(sink.assignments) != 1 || !sink.assignments[0].Committed {
		t.Fatalf("unexpected records: %+v", sink.assignments)
	}
}

type captureSink struct {
	mu          sync.Mutex
	assignments []coremetrics.AssignmentRecord
}

func (s *captureSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	s.mu.Lock()
	s.assignments = append(s.assignments, recs...)
	s.mu.Unlock()
	return nil
}

func storeAssignment(driverID, jobID string) store.Assignment {
	return store.Assignment{DriverID: driverID, JobID: jobID, AssignedAt: 1}
}

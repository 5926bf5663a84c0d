package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/citydrop/dispatch/core/events"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
)

func TestSweep_ReclaimsOverdueAssignment(t *testing.T) {
	f := newFixture(t, Config{})
	f.createOrder(t, "o1", 48.85, 2.35)
	// AssignedAt far in the past so the ack deadline has long passed.
	f.assignOrder(t, "o1", "d1", "j1")

	res, err := f.mgr.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 1 {
		t.Fatalf("released %d, want 1", res.Released)
	}
	o := f.mustGet(t, "o1")
	if o.Status != model.StatusUnassigned || o.DriverID != "" || o.JobID != "" {
		t.Fatalf("release residue: %+v", o)
	}
	if lock, err := f.locks.Get(context.Background(), "d1"); err == nil && lock.Locked {
		t.Fatalf("driver d1 still locked: %+v", lock)
	}
}

func TestSweep_LeavesFreshAssignmentAlone(t *testing.T) {
	f := newFixture(t, Config{})
	f.createOrder(t, "o1", 48.85, 2.35)
	ctx := context.Background()
	if err := f.locks.Acquire(ctx, "d1", []string{"o1"}); err != nil {
		t.Fatalf("lock: %v", err)
	}
	err := f.orders.Assign(ctx, "o1", store.Assignment{
		DriverID: "d1", JobID: "j1", AssignedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	res, err := f.mgr.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 0 {
		t.Fatalf("released %d, want 0", res.Released)
	}
	if o := f.mustGet(t, "o1"); o.Status != model.StatusAssigned {
		t.Fatalf("fresh assignment touched: %+v", o)
	}
}

func TestSweep_CancelsExpiredOrders(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	err := f.orders.Create(ctx, model.Order{ID: "o1", ProviderID: "prov-1", ExpiresAt: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.createOrder(t, "o2", 48.85, 2.35)
	sub := f.bus.Subscribe()

	res, err := f.mgr.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Cancelled != 1 {
		t.Fatalf("cancelled %d, want 1", res.Cancelled)
	}
	if o := f.mustGet(t, "o1"); o.Status != model.StatusCancelled {
		t.Fatalf("o1 not cancelled: %+v", o)
	}
	if o := f.mustGet(t, "o2"); o.Status != model.StatusUnassigned {
		t.Fatalf("o2 must survive: %+v", o)
	}
	var callback, completed bool
	for _, e := range drain(sub) {
		switch ev := e.(type) {
		case events.ProviderCallback:
			if ev.OrderID == "o1" && ev.Status == "CANCELLED" {
				callback = true
			}
		case events.SweepCompleted:
			completed = true
		}
	}
	if !callback || !completed {
		t.Fatalf("missing events: callback=%v completed=%v", callback, completed)
	}
}

func TestSweep_ExpiredOrderNeverEntersBatch(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if err := f.orders.Create(ctx, model.Order{ID: "o1", ExpiresAt: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.mgr.Ingest(ctx)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Batched != 0 {
		t.Fatalf("expired order batched: %+v", res)
	}
}

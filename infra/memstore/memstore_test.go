package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
)

func newOrder(id string) model.Order {
	return model.Order{ID: id, Status: model.StatusUnassigned, ProviderID: "prov-1"}
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	db := New()
	orders := db.Orders()

	if err := orders.Create(ctx, newOrder("o1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := orders.Create(ctx, newOrder("o1")); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate create: %v", err)
	}

	if err := orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", JobID: "j1", AssignedAt: time.Now().UnixMilli()}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// Second assignment attempt on an already-ASSIGNED order must fail.
	if err := orders.Assign(ctx, "o1", store.Assignment{DriverID: "d2", JobID: "j2"}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("double assign: %v", err)
	}

	if err := orders.Accept(ctx, "o1", "d1", "j1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	o, err := orders.Get(ctx, "o1")
	if err != nil || o.Status != model.StatusAccepted || o.DriverID != "d1" {
		t.Fatalf("unexpected order after accept: %+v err=%v", o, err)
	}
}

func TestAcceptRequiresMatchingOwner(t *testing.T) {
	ctx := context.Background()
	orders := New().Orders()
	if err := orders.Create(ctx, newOrder("o1")); err != nil {
		t.Fatal(err)
	}
	if err := orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", JobID: "j1"}); err != nil {
		t.Fatal(err)
	}
	if err := orders.Accept(ctx, "o1", "d2", "j1"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("wrong driver must conflict: %v", err)
	}
	if err := orders.Accept(ctx, "o1", "d1", "stale"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("stale job must conflict: %v", err)
	}
}

func TestReleaseClearsDriverFields(t *testing.T) {
	ctx := context.Background()
	orders := New().Orders()
	if err := orders.Create(ctx, newOrder("o1")); err != nil {
		t.Fatal(err)
	}
	if err := orders.MarkBatched(ctx, "o1", "b1"); err != nil {
		t.Fatal(err)
	}
	o, _ := orders.Get(ctx, "o1")
	if o.BatchID != "b1" {
		t.Fatalf("batch not set: %+v", o)
	}
	if err := orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", JobID: "j1", AssignedAt: 100}); err != nil {
		t.Fatal(err)
	}
	if err := orders.Release(ctx, "o1", "j1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	o, _ = orders.Get(ctx, "o1")
	if o.Status != model.StatusUnassigned || o.DriverID != "" || o.JobID != "" || o.BatchID != "" || o.AssignedAt != 0 {
		t.Fatalf("release left residue: %+v", o)
	}
	// Releasing again is a lost race, not a success.
	if err := orders.Release(ctx, "o1", "j1"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second release: %v", err)
	}
}

func TestCancelOnlyUnassigned(t *testing.T) {
	ctx := context.Background()
	orders := New().Orders()
	if err := orders.Create(ctx, newOrder("o1")); err != nil {
		t.Fatal(err)
	}
	if err := orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", JobID: "j1"}); err != nil {
		t.Fatal(err)
	}
	if err := orders.Cancel(ctx, "o1"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("cancel of assigned order: %v", err)
	}
	if err := orders.Release(ctx, "o1", "j1"); err != nil {
		t.Fatal(err)
	}
	if err := orders.Cancel(ctx, "o1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	o, _ := orders.Get(ctx, "o1")
	if o.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", o.Status)
	}
}

func TestConcurrentAssign_OneWinner(t *testing.T) {
	ctx := context.Background()
	orders := New().Orders()
	if err := orders.Create(ctx, newOrder("o1")); err != nil {
		t.Fatal(err)
	}
	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a := store.Assignment{DriverID: "d", JobID: "j"}
			if err := orders.Assign(ctx, "o1", a); err == nil {
				wins <- "w"
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	if got := len(wins); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestConcurrentCancelAssign_OneWinner(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		orders := New().Orders()
		if err := orders.Create(ctx, newOrder("o1")); err != nil {
			t.Fatal(err)
		}
		start := make(chan struct{})
		wins := make(chan string, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			if err := orders.Cancel(ctx, "o1"); err == nil {
				wins <- "cancel"
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			if err := orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", JobID: "j1"}); err == nil {
				wins <- "assign"
			}
		}()
		close(start)
		wg.Wait()
		close(wins)
		if got := len(wins); got != 1 {
			t.Fatalf("iteration %d: expected exactly one winner, got %d", i, got)
		}
		o, err := orders.Get(ctx, "o1")
		if err != nil {
			t.Fatal(err)
		}
		switch <-wins {
		case "cancel":
			if o.Status != model.StatusCancelled || o.DriverID != "" {
				t.Fatalf("iteration %d: cancel won but state is %+v", i, o)
			}
		case "assign":
			if o.Status != model.StatusAssigned || o.DriverID != "d1" {
				t.Fatalf("iteration %d: assign won but state is %+v", i, o)
			}
		}
	}
}

func TestLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locks := New().Locks()
	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := locks.Acquire(ctx, "d1", []string{"o1"}); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	if got := len(wins); got != 1 {
		t.Fatalf("expected exactly one lock winner, got %d", got)
	}
}

func TestLockReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	locks := New().Locks()
	if err := locks.Acquire(ctx, "d1", []string{"o1", "o2"}); err != nil {
		t.Fatal(err)
	}
	if err := locks.Release(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if err := locks.Release(ctx, "d1"); err != nil {
		t.Fatalf("second release must be a no-op: %v", err)
	}
	if err := locks.Release(ctx, "never-locked"); err != nil {
		t.Fatalf("releasing an absent driver must be a no-op: %v", err)
	}
	l, err := locks.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
}

func TestLockRemoveOrders(t *testing.T) {
	ctx := context.Background()
	locks := New().Locks()
	if err := locks.Acquire(ctx, "d1", []string{"o1", "o2"}); err != nil {
		t.Fatal(err)
	}
	if err := locks.RemoveOrders(ctx, "d1", []string{"o1"}); err != nil {
		t.Fatal(err)
	}
	l, _ := locks.Get(ctx, "d1")
	if !l.Locked || len(l.Orders) != 1 || l.Orders[0] != "o2" {
		t.Fatalf("unexpected lock: %+v", l)
	}
	if err := locks.RemoveOrders(ctx, "d1", []string{"o2"}); err != nil {
		t.Fatal(err)
	}
	l, _ = locks.Get(ctx, "d1")
	if l.Locked || len(l.Orders) != 0 {
		t.Fatalf("lock must clear when empty: %+v", l)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
	// Reacquirable after full removal.
	if err := locks.Acquire(ctx, "d1", []string{"o3"}); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

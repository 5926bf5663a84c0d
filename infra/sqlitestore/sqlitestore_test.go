package sqlitestore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/model"
	"github.com/citydrop/dispatch/core/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOrderTransitions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	orders := db.Orders()

	o := model.Order{ID: "o1", Status: model.StatusUnassigned, ProviderID: "p1",
		Pickup: model.GeoPoint{Lat: 48.85, Lon: 2.35}}
	require.NoError(t, orders.Create(ctx, o))
	require.ErrorIs(t, orders.Create(ctx, o), errs.ErrConflict)

	require.NoError(t, orders.MarkBatched(ctx, "o1", "b1"))
	require.ErrorIs(t, orders.MarkBatched(ctx, "o1", "b2"), errs.ErrConflict)

	require.NoError(t, orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", DriverIdentity: "ident-1", JobID: "j1", AssignedAt: 42}))
	require.ErrorIs(t, orders.Assign(ctx, "o1", store.Assignment{DriverID: "d2", JobID: "j2"}), errs.ErrConflict)

	got, err := orders.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, model.StatusAssigned, got.Status)
	require.Equal(t, "d1", got.DriverID)
	require.Equal(t, "ident-1", got.DriverIdentity)
	require.Equal(t, int64(42), got.AssignedAt)
	require.InDelta(t, 48.85, got.Pickup.Lat, 1e-9)

	require.ErrorIs(t, orders.Accept(ctx, "o1", "d1", "stale"), errs.ErrConflict)
	require.NoError(t, orders.Accept(ctx, "o1", "d1", "j1"))

	require.NoError(t, orders.Finish(ctx, "o1", "d1", "j1", model.StatusDelivered))
	got, err = orders.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, model.StatusDelivered, got.Status)
	require.Empty(t, got.DriverID)
}

func TestReleaseAndCancel(t *testing.T) {
	ctx := context.Background()
	orders := openTestDB(t).Orders()

	require.NoError(t, orders.Create(ctx, model.Order{ID: "o1", Status: model.StatusUnassigned}))
	require.NoError(t, orders.Assign(ctx, "o1", store.Assignment{DriverID: "d1", JobID: "j1"}))
	require.NoError(t, orders.Release(ctx, "o1", "j1"))

	got, err := orders.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, model.StatusUnassigned, got.Status)
	require.Empty(t, got.DriverID)
	require.Empty(t, got.JobID)
	require.Empty(t, got.BatchID)

	require.NoError(t, orders.Cancel(ctx, "o1"))
	require.ErrorIs(t, orders.Cancel(ctx, "o1"), errs.ErrConflict)
	require.ErrorIs(t, orders.Cancel(ctx, "missing"), errs.ErrNotFound)
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	orders := openTestDB(t).Orders()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, orders.Create(ctx, model.Order{ID: id, Status: model.StatusUnassigned}))
	}
	require.NoError(t, orders.Assign(ctx, "a", store.Assignment{DriverID: "d1", JobID: "j1"}))
	require.NoError(t, orders.Assign(ctx, "b", store.Assignment{DriverID: "d1", JobID: "j1"}))

	unassigned, err := orders.ListByStatus(ctx, model.StatusUnassigned)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)

	byJob, err := orders.ListByJob(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, byJob, 2)
}

func TestLockAcquireReleaseCycle(t *testing.T) {
	ctx := context.Background()
	locks := openTestDB(t).Locks()

	require.NoError(t, locks.Acquire(ctx, "d1", []string{"o1", "o2"}))
	require.ErrorIs(t, locks.Acquire(ctx, "d1", []string{"o3"}), errs.ErrConflict)

	l, err := locks.Get(ctx, "d1")
	require.NoError(t, err)
	require.True(t, l.Locked)
	require.Equal(t, []string{"o1", "o2"}, l.Orders)
	require.NoError(t, l.Validate())

	require.NoError(t, locks.RemoveOrders(ctx, "d1", []string{"o1"}))
	l, err = locks.Get(ctx, "d1")
	require.NoError(t, err)
	require.True(t, l.Locked)
	require.Equal(t, []string{"o2"}, l.Orders)

	require.NoError(t, locks.RemoveOrders(ctx, "d1", []string{"o2"}))
	l, err = locks.Get(ctx, "d1")
	require.NoError(t, err)
	require.False(t, l.Locked)
	require.NoError(t, l.Validate())

	// Idempotent release, then reacquire.
	require.NoError(t, locks.Release(ctx, "d1"))
	require.NoError(t, locks.Release(ctx, "d1"))
	require.NoError(t, locks.Acquire(ctx, "d1", []string{"o9"}))
}

func TestLockAcquireEmptySetLeavesDriverFree(t *testing.T) {
	ctx := context.Background()
	locks := openTestDB(t).Locks()

	require.NoError(t, locks.Acquire(ctx, "d1", nil))
	l, err := locks.Get(ctx, "d1")
	require.NoError(t, err)
	require.False(t, l.Locked)
	require.Empty(t, l.Orders)
	require.NoError(t, l.Validate())

	// An empty acquisition must not block the next real one.
	require.NoError(t, locks.Acquire(ctx, "d1", []string{"o1"}))
}

func TestLockConcurrentRemoveOrdersReleasesDriver(t *testing.T) {
	ctx := context.Background()
	locks := openTestDB(t).Locks()

	for i := 0; i < 500; i++ {
		require.NoError(t, locks.Acquire(ctx, "d1", []string{"o1", "o2"}))

		start := make(chan struct{})
		errCh := make(chan error, 2)
		var wg sync.WaitGroup
		for _, id := range []string{"o1", "o2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				<-start
				errCh <- locks.RemoveOrders(ctx, "d1", []string{id})
			}(id)
		}
		close(start)
		wg.Wait()
		close(errCh)
		for err := range errCh {
			require.NoError(t, err)
		}

		l, err := locks.Get(ctx, "d1")
		require.NoError(t, err)
		require.False(t, l.Locked, "iteration %d: lock still held after both orders were removed", i)
		require.Empty(t, l.Orders)
	}
}

func TestLockReleaseUnknownDriverIsNoop(t *testing.T) {
	ctx := context.Background()
	locks := openTestDB(t).Locks()
	require.NoError(t, locks.Release(ctx, "ghost"))
	require.NoError(t, locks.RemoveOrders(ctx, "ghost", []string{"o1"}))
	_, err := locks.Get(ctx, "ghost")
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

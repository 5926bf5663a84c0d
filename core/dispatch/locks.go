package dispatch

import (
	"context"
	"errors"

	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/logger"
	"github.com/citydrop/dispatch/core/store"
)

// LockManager mediates per-driver mutual exclusion. Acquisition is a single
// conditional write; a conflict means another actor holds the driver and the
// whole assignment candidate must be dropped, not retried.
type LockManager struct {
	locks store.LockStore
	log   logger.Logger
}

// NewLockManager creates a LockManager.
func NewLockManager(locks store.LockStore, log logger.Logger) *LockManager {
	return &LockManager{locks: locks, log: log}
}

// Acquire takes the driver lock for the given orders. Returns
// errs.ErrConflict when the driver is already booked.
func (m *LockManager) Acquire(ctx context.Context, driverID string, orderIDs []string) error {
	if err := m.locks.Acquire(ctx, driverID, orderIDs); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			m.log.Debugf("driver %s already locked, dropping candidate with %d orders", driverID, len(orderIDs))
		}
		return err
	}
	m.log.Debugw("driver lock acquired", map[string]any{"driver_id": driverID, "orders": len(orderIDs)})
	return nil
}

// Release frees the driver lock entirely. Idempotent: the timeout and
// rejection paths may both try to release the same driver.
func (m *LockManager) Release(ctx context.Context, driverID string) error {
	return m.locks.Release(ctx, driverID)
}

// ReleaseOrders drops the given orders from the driver's lock, unlocking
// the driver once nothing is held.
func (m *LockManager) ReleaseOrders(ctx context.Context, driverID string, orderIDs []string) error {
	return m.locks.RemoveOrders(ctx, driverID, orderIDs)
}

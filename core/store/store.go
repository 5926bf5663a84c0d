// Package store defines the conditional-write record store consumed by the
// dispatch core. Every mutation is a compare-and-swap keyed on the record's
// current state; a failed condition returns errs.ErrConflict and means the
// caller lost a race, not that the store failed. No multi-item transactions
// are assumed.
package store

import (
	"context"

	"github.com/citydrop/dispatch/core/model"
)

// Assignment captures the fields written when an order moves from
// UNASSIGNED to ASSIGNED.
type Assignment struct {
	DriverID       string
	DriverIdentity string
	JobID          string
	AssignedAt     int64
}

// OrderStore persists orders. Implementations must enforce each method's
// precondition atomically with the write.
type OrderStore interface {
	// Get returns the order or errs.ErrNotFound.
	Get(ctx context.Context, id string) (model.Order, error)

	// Create inserts a new UNASSIGNED order. Fails with errs.ErrConflict
	// if the id already exists.
	Create(ctx context.Context, o model.Order) error

	// MarkBatched tags an order with a solver batch.
	// Precondition: status=UNASSIGNED and batchId empty.
	MarkBatched(ctx context.Context, id, batchID string) error

	// ClearBatch removes the batch tag so the order re-enters the next
	// ingest cycle. Idempotent: clearing an untagged order is a no-op.
	ClearBatch(ctx context.Context, id string) error

	// Assign transitions UNASSIGNED -> ASSIGNED and records the driver
	// and job. Precondition: status=UNASSIGNED.
	Assign(ctx context.Context, id string, a Assignment) error

	// Accept transitions ASSIGNED -> ACCEPTED.
	// Precondition: status=ASSIGNED, driverId and jobId match.
	Accept(ctx context.Context, id, driverID, jobID string) error

	// Release transitions ASSIGNED -> UNASSIGNED, clearing driverId,
	// driverIdentity, jobId and batchId.
	// Precondition: status=ASSIGNED and jobId matches.
	Release(ctx context.Context, id, jobID string) error

	// Cancel transitions UNASSIGNED -> CANCELLED.
	// Precondition: status=UNASSIGNED.
	Cancel(ctx context.Context, id string) error

	// Finish moves the order to a terminal driver-reported status such as
	// DELIVERED. Precondition: status ASSIGNED or ACCEPTED, driverId and
	// jobId match.
	Finish(ctx context.Context, id, driverID, jobID string, st model.Status) error

	// ListByStatus returns all orders with the given status.
	ListByStatus(ctx context.Context, st model.Status) ([]model.Order, error)

	// ListByJob returns all orders tagged with the given jobId.
	ListByJob(ctx context.Context, jobID string) ([]model.Order, error)
}

// LockStore persists driver locks. The acquire conditional write is the
// system's sole mutual-exclusion primitive.
type LockStore interface {
	// Get returns the lock record or errs.ErrNotFound.
	Get(ctx context.Context, driverID string) (model.DriverLock, error)

	// Acquire takes the driver lock for the given orders.
	// Precondition: locked=false or record absent. Returns
	// errs.ErrConflict when another actor holds the lock.
	Acquire(ctx context.Context, driverID string, orderIDs []string) error

	// Release frees the lock entirely. Idempotent: releasing an unlocked
	// or absent driver is a no-op, because timeout and rejection paths
	// may race.
	Release(ctx context.Context, driverID string) error

	// RemoveOrders drops the given orders from the lock's held set,
	// unlocking the driver when the set becomes empty. Unknown orders
	// and unlocked drivers are ignored.
	RemoveOrders(ctx context.Context, driverID string, orderIDs []string) error
}

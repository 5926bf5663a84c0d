// Package solver defines the contract with the external routing/solver
// service that proposes driver-to-order assignments.
package solver

import (
	"context"
	"time"

	"github.com/citydrop/dispatch/core/cluster"
	"github.com/citydrop/dispatch/core/errs"
	"github.com/citydrop/dispatch/core/model"
)

// State reported by the solver for a problem.
type State string

const (
	// StateSolving means the solver is still running; the caller must
	// re-poll.
	StateSolving State = "SOLVING"
	// StateNotSolving means the problem is solved and assignments are
	// final.
	StateNotSolving State = "NOT_SOLVING"
	// StateNoDrivers means the problem is solved with zero assignments.
	StateNoDrivers State = "NO_DRIVERS"
)

// Problem is one solver invocation: the clusters of a batch.
type Problem struct {
	BatchID  string
	Clusters []cluster.Cluster
	Orders   []model.Order
}

// Assignment is one proposed (driver, order-set) pair.
type Assignment struct {
	DriverID       string
	DriverIdentity string
	OrderIDs       []string
	Route          []model.GeoPoint
}

// Result is the solver's answer for a problem. Unassigned order ids are
// returned verbatim for the caller to leave UNASSIGNED, clearing their
// batchId so they re-enter the next ingest cycle.
type Result struct {
	State      State
	Assigned   []Assignment
	Unassigned []string
}

// Solved reports whether the solver has finished with this problem.
func (r Result) Solved() bool {
	return r.State == StateNotSolving || r.State == StateNoDrivers
}

// Client talks to the external solver. Submit fails with errs.ErrUpstream on
// network or 5xx errors; the invoking trigger owns the retry policy.
type Client interface {
	Submit(ctx context.Context, p Problem) (problemID string, err error)
	Status(ctx context.Context, problemID string) (Result, error)
}

// Await polls the solver until the problem is solved, the attempt budget is
// exhausted, or the context is cancelled. A bounded attempt count replaces
// an open-ended wait; when the budget runs out the last in-progress result
// is returned with errs.ErrUpstream so the caller can defer the batch.
func Await(ctx context.Context, c Client, problemID string, attempts int, interval time.Duration) (Result, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var res Result
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(interval):
			}
		}
		res, err = c.Status(ctx, problemID)
		if err != nil {
			return res, err
		}
		if res.Solved() {
			return res, nil
		}
	}
	return res, errs.ErrUpstream
}

// Package errs defines the error taxonomy shared by the dispatch core.
package errs

import "errors"

// ErrConflict signals a lost race on a conditional write. It is expected
// under concurrent operation and never fatal: the unit of work is skipped or
// deferred, never blindly retried against the same winner.
var ErrConflict = errors.New("conditional write conflict")

// ErrPrecondition signals that the caller attempted an invalid transition,
// such as cancelling an order that is already assigned. Reported to the
// caller, not retried.
var ErrPrecondition = errors.New("precondition failed")

// ErrNotFound indicates that the referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUpstream indicates a solver or channel call failed. It propagates to
// the invoking trigger, which owns the retry policy.
var ErrUpstream = errors.New("upstream unavailable")

// ErrIntegrity indicates an event referenced an order/driver/job combination
// that does not match stored state. Never applied silently: the handler
// raises an alert event and drops the update.
var ErrIntegrity = errors.New("integrity violation")

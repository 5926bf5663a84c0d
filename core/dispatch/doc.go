// Package dispatch implements the order-to-driver assignment orchestrator.
//
// Pending orders are batched and clustered, submitted to the external
// routing solver, and each proposed (driver, order-set) pair is committed
// under a per-driver lock before the job is pushed to the driver's channel.
// Driver acknowledgements are reconciled against stored state, and a
// periodic sweeper reclaims orders whose driver never answered.
//
// Key components:
//   - Ingestor: selects unassigned orders, clusters them, runs the solver
//     round trip and hands proposals to the committer.
//   - LockManager: per-driver mutual exclusion over conditional writes.
//   - Committer: UNASSIGNED -> ASSIGNED transitions plus the job publish.
//   - Reconciler: applies ACCEPTED/REJECTED/STATUS_CHANGE driver events.
//   - Sweeper: releases overdue assignments and cancels expired orders.
//   - Canceller: provider-requested cancellation of unassigned orders.
//
// There is no central coordinator: every component may run concurrently
// with the others, and all shared state lives in the order and lock
// records. A lost conditional write (errs.ErrConflict) is the expected
// signal of a lost race; the unit of work is skipped or deferred, never
// retried against the same winner.
package dispatch

// Package events defines the domain events published on the internal bus
// by the dispatch core. Payloads are plain structs so consumers can
// type-switch on them.
package events

import "time"

// OrderFulfilled is published once an order is committed to a driver and
// the job has been sent out over the driver channel.
type OrderFulfilled struct {
	OrderID  string
	DriverID string
	JobID    string
	BatchID  string
	Time     time.Time
}

// OrderRejected is published when a driver declines a proposed job and the
// order returns to the unassigned pool.
type OrderRejected struct {
	OrderID  string
	DriverID string
	JobID    string
	Time     time.Time
}

// IntegrityAlert signals a driver event that contradicts stored state,
// for example an acknowledgment from a driver that does not hold the
// order. The update that triggered it is always dropped.
type IntegrityAlert struct {
	Reason   string
	OrderID  string
	DriverID string
	JobID    string
	Time     time.Time
}

// ProviderCallback notifies the originating provider about a terminal
// order transition (delivered, failed, cancelled).
type ProviderCallback struct {
	OrderID    string
	ProviderID string
	Status     string
	Time       time.Time
}

// SweepCompleted summarizes one sweeper pass over stale state.
type SweepCompleted struct {
	Released  int
	Cancelled int
	Time      time.Time
}

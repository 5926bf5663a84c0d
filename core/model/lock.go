package model

import "fmt"

// DriverLock is the mutual-exclusion record preventing double-booking of a
// driver. It is acquired only through a conditional write requiring the
// prior value of Locked to be false (or the record to be absent); that
// conditional write is the system's sole mutual-exclusion primitive.
type DriverLock struct {
	DriverID string
	Locked   bool
	Orders   []string
}

// Validate checks the locked/orders invariant: a lock is held iff it covers
// at least one order.
func (l DriverLock) Validate() error {
	if l.DriverID == "" {
		return fmt.Errorf("driver id required")
	}
	if l.Locked != (len(l.Orders) > 0) {
		return fmt.Errorf("lock %s: locked=%t with %d orders", l.DriverID, l.Locked, len(l.Orders))
	}
	return nil
}

// Holds reports whether the lock currently covers the given order.
func (l DriverLock) Holds(orderID string) bool {
	for _, id := range l.Orders {
		if id == orderID {
			return true
		}
	}
	return false
}

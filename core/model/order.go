package model

import (
	"fmt"
	"time"
)

// Status describes the lifecycle state of an order.
type Status int

const (
	StatusUnassigned Status = iota
	StatusAssigned
	StatusAccepted
	StatusRejected
	StatusCancelled
	StatusDelivered
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUnassigned:
		return "UNASSIGNED"
	case StatusAssigned:
		return "ASSIGNED"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusDelivered:
		return "DELIVERED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a wire status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "UNASSIGNED":
		return StatusUnassigned, nil
	case "ASSIGNED":
		return StatusAssigned, nil
	case "ACCEPTED":
		return StatusAccepted, nil
	case "REJECTED":
		return StatusRejected, nil
	case "CANCELLED":
		return StatusCancelled, nil
	case "DELIVERED":
		return StatusDelivered, nil
	default:
		return 0, fmt.Errorf("unknown status: %s", s)
	}
}

// Terminal reports whether the status is an end state. Terminal orders are
// never mutated again.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// Order is a delivery request flowing through the dispatch pipeline.
//
// DriverID and DriverIdentity are set only while the order is ASSIGNED or
// ACCEPTED; the reconciler and the sweeper are the only actors that clear
// them. JobID correlates the order to the dispatch job that last touched it
// and is used to reject stale driver events. BatchID marks the order as part
// of an in-flight solver batch so it is not re-ingested.
type Order struct {
	ID             string
	Status         Status
	DriverID       string
	DriverIdentity string
	JobID          string
	BatchID        string
	ProviderID     string
	Pickup         GeoPoint
	Dropoff        GeoPoint
	CreatedAt      int64 // epoch millis
	UpdatedAt      int64
	AssignedAt     int64
	ExpiresAt      int64
}

// Validate checks that the order is structurally sound.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id required")
	}
	if (o.DriverID != "") != (o.Status == StatusAssigned || o.Status == StatusAccepted) {
		return fmt.Errorf("order %s: driver set but status is %s", o.ID, o.Status)
	}
	return nil
}

// Expired reports whether the order passed its expiry deadline at now.
// Orders without an ExpiresAt never expire.
func (o Order) Expired(now time.Time) bool {
	return o.ExpiresAt > 0 && now.UnixMilli() >= o.ExpiresAt
}

// AckOverdue reports whether an ASSIGNED order has waited longer than
// deadline for a driver acknowledgment.
func (o Order) AckOverdue(now time.Time, deadline time.Duration) bool {
	if o.Status != StatusAssigned || o.AssignedAt == 0 {
		return false
	}
	return now.UnixMilli()-o.AssignedAt > deadline.Milliseconds()
}

// Package channel defines the pub/sub contract with driver devices.
// Delivery to a driver is at most once and carries no broker-level
// acknowledgment; confirmation arrives later as a driver status event.
package channel

import "github.com/citydrop/dispatch/core/model"

// JobMessage is the payload pushed to a driver's topic after commit. It
// contains only the orders that were actually committed.
type JobMessage struct {
	JobID    string           `json:"job_id"`
	OrderIDs []string         `json:"order_ids"`
	Route    []model.GeoPoint `json:"route"`
	SentAt   int64            `json:"sent_at"`
}

// EventType classifies a driver status event.
type EventType string

const (
	EventAccepted     EventType = "ACCEPTED"
	EventRejected     EventType = "REJECTED"
	EventStatusChange EventType = "STATUS_CHANGE"
)

// StatusEvent is a driver-originated event. OrderID may be empty, in which
// case the event applies to every order sharing JobID.
type StatusEvent struct {
	Type     EventType `json:"type"`
	DriverID string    `json:"driver_id"`
	JobID    string    `json:"job_id"`
	OrderID  string    `json:"order_id,omitempty"`
	Status   string    `json:"status,omitempty"`
}

// StatusHandler consumes driver status events.
type StatusHandler func(ev StatusEvent)

// Channel publishes jobs to drivers and delivers their status events.
type Channel interface {
	// PublishJob pushes the job to the driver's topic. Failure is
	// surfaced to the caller; the orders stay ASSIGNED and the sweeper's
	// timeout path reclaims them.
	PublishJob(driverID string, job JobMessage) error

	// SubscribeStatus registers the handler for incoming driver events.
	SubscribeStatus(h StatusHandler) error

	Close() error
}

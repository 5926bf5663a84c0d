package mqtt

import (
	"fmt"
	"sync"

	"github.com/citydrop/dispatch/core/channel"
	"github.com/citydrop/dispatch/core/errs"
)

// MockChannel is a simple in-memory driver channel used in tests.
type MockChannel struct {
	mu        sync.Mutex
	Jobs      map[string][]channel.JobMessage // by driver id
	FailIDs   map[string]bool
	handler   channel.StatusHandler
	closed    bool
	Published int
}

// NewMockChannel creates a new MockChannel.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		Jobs:    make(map[string][]channel.JobMessage),
		FailIDs: make(map[string]bool),
	}
}

var _ channel.Channel = (*MockChannel)(nil)

// PublishJob records the message or returns an error if configured to fail.
func (m *MockChannel) PublishJob(driverID string, job channel.JobMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[driverID] {
		return fmt.Errorf("%w: publish failed", errs.ErrUpstream)
	}
	m.Jobs[driverID] = append(m.Jobs[driverID], job)
	m.Published++
	return nil
}

// SubscribeStatus registers the handler for injected driver events.
func (m *MockChannel) SubscribeStatus(h channel.StatusHandler) error {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
	return nil
}

// Inject delivers a driver status event to the registered handler, as if it
// arrived from the broker.
func (m *MockChannel) Inject(ev channel.StatusEvent) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// LastJob returns the most recent job published to the driver.
func (m *MockChannel) LastJob(driverID string) (channel.JobMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.Jobs[driverID]
	if len(jobs) == 0 {
		return channel.JobMessage{}, false
	}
	return jobs[len(jobs)-1], true
}

// Close marks the channel closed.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

package eventbus

import (
	"testing"
	"time"

	"github.com/citydrop/dispatch/core/events"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish(events.OrderFulfilled{OrderID: "o1", DriverID: "d1", Time: time.Now()})
	v := <-ch
	ev, ok := v.(events.OrderFulfilled)
	if !ok || ev.OrderID != "o1" {
		t.Fatalf("unexpected event %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusFullSubscriberDoesNotBlock(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	for i := 0; i < 100; i++ {
		bus.Publish(events.SweepCompleted{Released: i})
	}
	// Buffer holds 16; the rest must have been dropped, not blocked.
	if len(ch) != 16 {
		t.Fatalf("expected full buffer of 16, got %d", len(ch))
	}
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

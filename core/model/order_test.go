package model

import (
	"testing"
	"time"
)

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusUnassigned, StatusAssigned, StatusAccepted, StatusRejected, StatusCancelled, StatusDelivered} {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		if got != s {
			t.Fatalf("round trip %s: got %s", s, got)
		}
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestOrderValidate_DriverInvariant(t *testing.T) {
	o := Order{ID: "o1", Status: StatusUnassigned, DriverID: "d1"}
	if err := o.Validate(); err == nil {
		t.Fatal("driver set on unassigned order must be invalid")
	}
	o = Order{ID: "o1", Status: StatusAssigned}
	if err := o.Validate(); err == nil {
		t.Fatal("assigned order without driver must be invalid")
	}
	o = Order{ID: "o1", Status: StatusAssigned, DriverID: "d1"}
	if err := o.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}
}

func TestOrderAckOverdue(t *testing.T) {
	now := time.Now()
	o := Order{ID: "o1", Status: StatusAssigned, DriverID: "d1", AssignedAt: now.Add(-6 * time.Minute).UnixMilli()}
	if !o.AckOverdue(now, 5*time.Minute) {
		t.Fatal("expected overdue")
	}
	if o.AckOverdue(now, 10*time.Minute) {
		t.Fatal("not overdue yet")
	}
	o.Status = StatusAccepted
	if o.AckOverdue(now, time.Minute) {
		t.Fatal("accepted orders are never overdue")
	}
}

func TestLockValidate(t *testing.T) {
	l := DriverLock{DriverID: "d1", Locked: true}
	if err := l.Validate(); err == nil {
		t.Fatal("locked without orders must be invalid")
	}
	l = DriverLock{DriverID: "d1", Locked: true, Orders: []string{"o1"}}
	if err := l.Validate(); err != nil {
		t.Fatalf("valid lock rejected: %v", err)
	}
	if !l.Holds("o1") || l.Holds("o2") {
		t.Fatal("Holds mismatch")
	}
}

func TestGeoDistance(t *testing.T) {
	p := GeoPoint{Lat: 48.8566, Lon: 2.3522}
	if d := p.DistanceMeters(p); d > 1e-6 {
		t.Fatalf("zero distance expected, got %v", d)
	}
	// Paris to Lyon is roughly 392 km.
	lyon := GeoPoint{Lat: 45.764, Lon: 4.8357}
	d := p.DistanceMeters(lyon)
	if d < 380000 || d > 410000 {
		t.Fatalf("unexpected Paris-Lyon distance: %v", d)
	}
}

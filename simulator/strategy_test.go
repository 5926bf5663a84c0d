package main

import "testing"

func TestDecide(t *testing.T) {
	if decide(0.5, 0) {
		t.Fatal("accept rate 0 must reject everything")
	}
	if !decide(0.5, 1) {
		t.Fatal("accept rate 1 must accept everything")
	}
	if !decide(0.3, 0.5) {
		t.Fatal("roll below rate must accept")
	}
	if decide(0.7, 0.5) {
		t.Fatal("roll above rate must reject")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{FleetSize: 3, AcceptRate: 0.5}
	if err := (&cfg).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := Config{FleetSize: 0, AcceptRate: 0.5}
	if err := (&bad).Validate(); err == nil {
		t.Fatal("zero fleet must be rejected")
	}
	bad = Config{FleetSize: 1, AcceptRate: 1.5}
	if err := (&bad).Validate(); err == nil {
		t.Fatal("accept rate above 1 must be rejected")
	}
}

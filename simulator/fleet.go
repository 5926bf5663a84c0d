package main

import (
	"context"
	"fmt"
)

// Fleet manages a set of simulated drivers.
type Fleet struct {
	drivers []*Driver
}

// StartFleet connects cfg.FleetSize drivers to the broker.
func StartFleet(ctx context.Context, cfg Config) (*Fleet, error) {
	strategy := RandomResponse{
		AcceptRate:   cfg.AcceptRate,
		Delay:        cfg.AckLatency,
		DeliverAfter: cfg.DeliverAfter,
	}
	f := &Fleet{}
	for i := 0; i < cfg.FleetSize; i++ {
		id := fmt.Sprintf("%s-%d", cfg.DriverPrefix, i)
		d, err := NewDriver(ctx, cfg.Broker, id, strategy)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.drivers = append(f.drivers, d)
	}
	return f, nil
}

// Size returns the number of connected drivers.
func (f *Fleet) Size() int { return len(f.drivers) }

// Close disconnects all drivers.
func (f *Fleet) Close() {
	for _, d := range f.drivers {
		d.Close()
	}
	f.drivers = nil
}

package main

import (
	"flag"
	"fmt"
	"time"
)

// Config holds parameters for the driver simulator.
type Config struct {
	Broker       string
	FleetSize    int
	DriverPrefix string
	AcceptRate   float64
	AckLatency   time.Duration
	DeliverAfter time.Duration
	Verbose      bool
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.IntVar(&cfg.FleetSize, "drivers", 5, "number of simulated drivers")
	flag.StringVar(&cfg.DriverPrefix, "prefix", "sim-driver", "driver id prefix")
	flag.Float64Var(&cfg.AcceptRate, "accept-rate", 0.9, "probability a driver accepts a job")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 500*time.Millisecond, "delay before answering a job")
	flag.DurationVar(&cfg.DeliverAfter, "deliver-after", 5*time.Second, "delay between acceptance and delivery report")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable log output")
	flag.Parse()
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.FleetSize <= 0 {
		return fmt.Errorf("drivers must be positive")
	}
	if c.AcceptRate < 0 || c.AcceptRate > 1 {
		return fmt.Errorf("accept-rate must be within [0,1]")
	}
	return nil
}

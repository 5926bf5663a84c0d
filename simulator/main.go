// Command simulator runs a fleet of simulated drivers against an MQTT
// broker: each driver subscribes to its job topic and answers with
// accept/reject decisions and delivery reports.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fleet, err := StartFleet(ctx, cfg)
	if err != nil {
		log.Fatalf("start fleet: %v", err)
	}
	defer fleet.Close()
	log.Printf("%d drivers connected to %s", fleet.Size(), cfg.Broker)

	<-ctx.Done()
}

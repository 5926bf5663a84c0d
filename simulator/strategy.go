package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/citydrop/dispatch/core/channel"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// ResponseStrategy defines how a driver answers an incoming job.
type ResponseStrategy interface {
	Respond(ctx context.Context, cli paho.Client, driverID string, job channel.JobMessage)
}

// AutoAccept accepts every job after an optional fixed delay and reports
// delivery after DeliverAfter.
type AutoAccept struct {
	Delay        time.Duration
	DeliverAfter time.Duration
}

// Respond implements ResponseStrategy.
func (a AutoAccept) Respond(ctx context.Context, cli paho.Client, driverID string, job channel.JobMessage) {
	if !wait(ctx, a.Delay) {
		return
	}
	publishStatus(cli, driverID, channel.StatusEvent{
		Type: channel.EventAccepted, DriverID: driverID, JobID: job.JobID,
	})
	if !wait(ctx, a.DeliverAfter) {
		return
	}
	publishStatus(cli, driverID, channel.StatusEvent{
		Type: channel.EventStatusChange, DriverID: driverID, JobID: job.JobID, Status: "DELIVERED",
	})
}

// RandomResponse accepts jobs with the configured probability and rejects
// the rest, each after the configured delay.
type RandomResponse struct {
	AcceptRate   float64
	Delay        time.Duration
	DeliverAfter time.Duration
}

// Respond implements ResponseStrategy.
func (r RandomResponse) Respond(ctx context.Context, cli paho.Client, driverID string, job channel.JobMessage) {
	if !wait(ctx, r.Delay) {
		return
	}
	if !decide(rng.Float64(), r.AcceptRate) {
		publishStatus(cli, driverID, channel.StatusEvent{
			Type: channel.EventRejected, DriverID: driverID, JobID: job.JobID,
		})
		return
	}
	publishStatus(cli, driverID, channel.StatusEvent{
		Type: channel.EventAccepted, DriverID: driverID, JobID: job.JobID,
	})
	if !wait(ctx, r.DeliverAfter) {
		return
	}
	publishStatus(cli, driverID, channel.StatusEvent{
		Type: channel.EventStatusChange, DriverID: driverID, JobID: job.JobID, Status: "DELIVERED",
	})
}

func decide(roll, acceptRate float64) bool {
	return roll < acceptRate
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func publishStatus(cli paho.Client, driverID string, ev channel.StatusEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("marshal status: %v", err)
		return
	}
	token := cli.Publish(fmt.Sprintf("drivers/%s/status", driverID), 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("status publish timeout for %s", driverID)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("publish status error for %s: %v", driverID, err)
	}
}

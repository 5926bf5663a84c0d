package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/citydrop/dispatch/core/channel"
)

// Driver simulates one courier: it listens on its job topic and answers
// with the configured strategy.
type Driver struct {
	ID       string
	strategy ResponseStrategy
	cli      paho.Client
}

// NewDriver connects the driver to the broker and subscribes its job topic.
func NewDriver(ctx context.Context, broker, id string, strategy ResponseStrategy) (*Driver, error) {
	cli, err := newMQTTClient(broker, id)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", id, err)
	}
	d := &Driver{ID: id, strategy: strategy, cli: cli}
	topic := fmt.Sprintf("drivers/%s/jobs", id)
	token := cli.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		var job channel.JobMessage
		if err := json.Unmarshal(msg.Payload(), &job); err != nil {
			log.Printf("driver %s: bad job payload: %v", id, err)
			return
		}
		log.Printf("driver %s received job %s (%d orders)", id, job.JobID, len(job.OrderIDs))
		go d.strategy.Respond(ctx, cli, id, job)
	})
	if token.Wait() && token.Error() != nil {
		cli.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return d, nil
}

// Close disconnects the driver.
func (d *Driver) Close() {
	d.cli.Disconnect(250)
}

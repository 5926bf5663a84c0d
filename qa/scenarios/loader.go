// Package scenarios runs YAML-defined dispatch flows end to end against
// the in-memory store and a scripted solver, asserting the resulting
// order statuses.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/citydrop/dispatch/core/model"
)

type OrderDef struct {
	ID  string  `yaml:"id"`
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

func (o OrderDef) ToModel() model.Order {
	return model.Order{
		ID:      o.ID,
		Pickup:  model.GeoPoint{Lat: o.Lat, Lon: o.Lon},
		Dropoff: model.GeoPoint{Lat: o.Lat + 0.01, Lon: o.Lon + 0.01},
	}
}

// ProposalDef is a scripted solver assignment: which orders the solver
// proposes for a driver.
type ProposalDef struct {
	DriverID string   `yaml:"driver_id"`
	Orders   []string `yaml:"orders"`
}

type Expected struct {
	Accepted   int `yaml:"accepted"`
	Unassigned int `yaml:"unassigned"`
	Cancelled  int `yaml:"cancelled"`
}

type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Orders      []OrderDef    `yaml:"orders"`
	Proposals   []ProposalDef `yaml:"proposals"`
	// Reject lists drivers that decline their job.
	Reject []string `yaml:"reject,omitempty"`
	// CancelBefore lists orders cancelled before the ingest cycle runs.
	CancelBefore []string `yaml:"cancel_before,omitempty"`
	Expected     Expected  `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

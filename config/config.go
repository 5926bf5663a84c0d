// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/citydrop/dispatch/api/orders"
	"github.com/citydrop/dispatch/core/dispatch"
	"github.com/citydrop/dispatch/core/metrics"
	"github.com/citydrop/dispatch/infra/mqtt"
	"github.com/citydrop/dispatch/infra/solver"
)

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the sqlite database file. Ignored for the memory backend.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks backend selection.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown store backend: %s", c.Backend)
	}
}

type Config struct {
	MQTT     mqtt.Config     `json:"mqtt"`
	Solver   solver.Config   `json:"solver"`
	Dispatch dispatch.Config `json:"dispatch"`
	Store    StoreConfig     `json:"store"`
	Metrics  metrics.Config  `json:"metrics"`
	API      orders.Config   `json:"api"`
}

// Load reads the configuration file, applies K_* environment overrides
// (double underscores map to nesting, e.g. K_MQTT__BROKER), fills defaults
// and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Solver.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Solver.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Dispatch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Package config loads the simulation configuration from a YAML or JSON file
// with BATSIM_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/core/metrics"
	"github.com/kilianp07/batsim/infra/mqtt"
	"github.com/kilianp07/batsim/infra/snapshot"
)

// EnvPrefix prefixes environment overrides: BATSIM_SIMULATION__REALTIME=true
// sets simulation.realtime.
const EnvPrefix = "BATSIM_"

type Config struct {
	Simulation SimulationConfig `json:"simulation"`
	Batteries  []BatteryConfig  `json:"batteries"`
	Snapshot   snapshot.Config  `json:"snapshot"`
	Metrics    metrics.Config   `json:"metrics"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Logging    LoggingConfig    `json:"logging"`
}

// Default returns the configuration used for every field the file omits.
func Default() Config {
	return Config{
		Simulation: DefaultSimulation(),
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads path, applies environment overrides, fills defaults and
// validates. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
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
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	unmarshal := koanf.UnmarshalConf{Tag: "json"}
	if err := k.UnmarshalWithConf("", &cfg, unmarshal); err != nil {
		return nil, err
	}
	// Decode each battery onto its own defaults; a slice decoded in place
	// would start from zero values.
	cfg.Batteries = nil
	for i, sub := range k.Slices("batteries") {
		bc := BatteryConfig{Battery: battery.DefaultConfig()}
		if sub.Exists("voltage_curve") {
			bc.Battery.VoltageCurve = nil
		}
		if err := sub.UnmarshalWithConf("", &bc, unmarshal); err != nil {
			return nil, fmt.Errorf("batteries[%d]: %w", i, err)
		}
		cfg.Batteries = append(cfg.Batteries, bc)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills optional fields of every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	for i := range c.Batteries {
		c.Batteries[i].SetDefaults(i)
	}
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and joins the errors.
func (c Config) Validate() error {
	var errs []error
	if err := c.Simulation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("simulation: %w", err))
	}
	seen := make(map[string]bool, len(c.Batteries))
	for i, b := range c.Batteries {
		if seen[b.ID] {
			errs = append(errs, fmt.Errorf("batteries[%d]: duplicate id %q", i, b.ID))
		}
		seen[b.ID] = true
		if err := b.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("batteries[%d] (%s): %w", i, b.ID, err))
		}
	}
	if err := c.Snapshot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot: %w", err))
	}
	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}

package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines the tick cadence.
type Config struct {
	// FastTickSeconds is the length of one fast tick.
	FastTickSeconds float64 `json:"fast_tick_seconds" yaml:"fast_tick_seconds"`
	// SlowTickPeriod is the number of fast ticks per slow tick.
	SlowTickPeriod int `json:"slow_tick_period" yaml:"slow_tick_period"`
}

// SetDefaults applies a 50 ms fast tick and a one second slow tick.
func (c *Config) SetDefaults() {
	if c.FastTickSeconds == 0 {
		c.FastTickSeconds = 0.05
	}
	if c.SlowTickPeriod == 0 {
		c.SlowTickPeriod = 20
	}
}

// Validate checks the cadence.
func (c Config) Validate() error {
	if !(c.FastTickSeconds > 0) {
		return fmt.Errorf("fast_tick_seconds must be positive")
	}
	if c.SlowTickPeriod < 1 {
		return fmt.Errorf("slow_tick_period must be at least 1")
	}
	return nil
}

// SlowTickSeconds is the length of one slow tick.
func (c Config) SlowTickSeconds() float64 {
	return c.FastTickSeconds * float64(c.SlowTickPeriod)
}

// LoadConfig loads a cadence Config from a JSON or YAML file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var cfg Config
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", ext)
	}
	return cfg, err
}

// DecodeConfig reads from r to decode a cadence Config.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/kilianp07/batsim/core/network"
	"github.com/kilianp07/batsim/core/scheduler"
)

// SimulationConfig drives the run loop.
type SimulationConfig struct {
	scheduler.Config `json:",squash"`
	// DurationSeconds is the simulated time to run. Zero runs until interrupted.
	DurationSeconds float64 `json:"duration_seconds"`
	// Realtime paces fast ticks against the wall clock.
	Realtime bool `json:"realtime"`
	// MaxResolves bounds the extra electrical solves per fast tick. Nil
	// selects network.DefaultMaxResolves; zero disables resolves.
	MaxResolves *int `json:"max_resolves"`
	// PublishPeriod is the number of fast ticks between telemetry snapshots.
	// Zero publishes once per slow tick.
	PublishPeriod int `json:"publish_period"`
	// StopOnFailure ends the run when a watchdog destroys a device.
	StopOnFailure bool `json:"stop_on_failure"`
	// AmbientTemperature of the thermal network, in °C.
	AmbientTemperature float64 `json:"ambient_temperature"`
	// RunID tags telemetry and snapshots. Generated when empty.
	RunID string `json:"run_id"`
}

// DefaultSimulation returns a 50 ms / 1 s cadence at 25 °C.
func DefaultSimulation() SimulationConfig {
	c := SimulationConfig{AmbientTemperature: 25}
	c.Config.SetDefaults()
	return c
}

// SetDefaults fills the cadence and run ID.
func (c *SimulationConfig) SetDefaults() {
	c.Config.SetDefaults()
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
}

// Validate checks the run settings.
func (c SimulationConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.DurationSeconds < 0 || math.IsNaN(c.DurationSeconds) {
		return fmt.Errorf("duration_seconds must not be negative")
	}
	if c.MaxResolves != nil && *c.MaxResolves < 0 {
		return fmt.Errorf("max_resolves must not be negative")
	}
	if c.PublishPeriod < 0 {
		return fmt.Errorf("publish_period must not be negative")
	}
	if math.IsNaN(c.AmbientTemperature) || math.IsInf(c.AmbientTemperature, 0) {
		return fmt.Errorf("ambient_temperature must be finite")
	}
	return nil
}

// Resolves returns the resolve budget of the coordinator.
func (c SimulationConfig) Resolves() int {
	if c.MaxResolves == nil {
		return network.DefaultMaxResolves
	}
	return *c.MaxResolves
}

// Publish returns the telemetry period in fast ticks, following the slow
// cadence unless set.
func (c SimulationConfig) Publish() int {
	if c.PublishPeriod > 0 {
		return c.PublishPeriod
	}
	return c.SlowTickPeriod
}

// Ticks returns the number of fast ticks covering DurationSeconds, zero when
// the run is unbounded.
func (c SimulationConfig) Ticks() uint64 {
	if c.DurationSeconds <= 0 {
		return 0
	}
	return uint64(math.Ceil(c.DurationSeconds/c.FastTickSeconds - 1e-9))
}

package network

import (
	"fmt"

	"github.com/kilianp07/batsim/core/logger"
)

// DefaultMaxResolves bounds the extra solves in one fast tick.
const DefaultMaxResolves = 6

// StepStats summarises one fast tick.
type StepStats struct {
	Solves int
	Forced bool
}

// Coordinator owns the strict ordering of a fast tick.
type Coordinator struct {
	elec        ElectricalNetwork
	therm       ThermalNetwork
	devices     []FastDevice
	maxResolves int
	log         logger.Logger
}

// NewCoordinator returns a coordinator for the given networks. therm may be
// nil when no thermal coupling is simulated.
func NewCoordinator(elec ElectricalNetwork, therm ThermalNetwork, maxResolves int, log logger.Logger) *Coordinator {
	if maxResolves < 0 {
		maxResolves = DefaultMaxResolves
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Coordinator{elec: elec, therm: therm, maxResolves: maxResolves, log: log}
}

// Add registers devices in dispatch order.
func (c *Coordinator) Add(devices ...FastDevice) {
	c.devices = append(c.devices, devices...)
}

// Step runs one fast tick of length dt seconds. On solver failure no device
// commits the tick and the thermal network does not advance.
func (c *Coordinator) Step(dt float64) (StepStats, error) {
	var stats StepStats
	for _, d := range c.devices {
		d.PreSolve()
	}
	resolve, err := c.solve(&stats)
	for i := 0; err == nil && resolve && i < c.maxResolves; i++ {
		resolve, err = c.solve(&stats)
	}
	if err != nil {
		return stats, err
	}
	if resolve {
		for _, d := range c.devices {
			if d.ForceLimit() {
				stats.Forced = true
			}
		}
		if stats.Forced {
			c.log.Warnf("resolve budget of %d exhausted, forcing limiters", c.maxResolves)
			if _, err := c.solve(&stats); err != nil {
				return stats, err
			}
		}
	}
	for _, d := range c.devices {
		d.EndTick(dt)
	}
	if c.therm != nil {
		c.therm.Step(dt)
	}
	return stats, nil
}

func (c *Coordinator) solve(stats *StepStats) (bool, error) {
	if err := c.elec.Solve(); err != nil {
		return false, fmt.Errorf("electrical solve: %w", err)
	}
	stats.Solves++
	resolve := false
	for _, d := range c.devices {
		if d.PostSolve() {
			resolve = true
		}
	}
	return resolve, nil
}

package battery

import (
	"math"

	"github.com/kilianp07/batsim/core/network"
)

// LossSource provides the instantaneous resistive loss of a component.
type LossSource interface {
	InstantaneousLossPower() float64
}

// Coupler feeds the ohmic loss of a battery into a thermal node as a heat
// source. The thermal solver pulls Power once per fast tick.
type Coupler struct {
	src  LossSource
	node network.ThermalNode
}

// NewCoupler wires src to node.
func NewCoupler(src LossSource, node network.ThermalNode) *Coupler {
	return &Coupler{src: src, node: node}
}

// Node returns the thermal node receiving the heat.
func (c *Coupler) Node() network.ThermalNode { return c.node }

// Power returns the heat injected this tick, in W.
func (c *Coupler) Power() float64 {
	p := c.src.InstantaneousLossPower()
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

// Attach registers the coupler with the thermal solver.
func (c *Coupler) Attach(net network.ThermalNetwork) error {
	return net.RegisterHeatSource(c.node, c.Power)
}

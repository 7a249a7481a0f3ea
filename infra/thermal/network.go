// Package thermal is a reference lumped thermal network: nodes with a heat
// capacity, a conductance to ambient and conductive links between them.
package thermal

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/batsim/core/logger"
	"github.com/kilianp07/batsim/core/network"
)

var (
	// ErrForeignNode is returned for nodes created by another network.
	ErrForeignNode = errors.New("thermal: node belongs to another network")
	// ErrInvalidNode is returned for physically invalid node parameters.
	ErrInvalidNode = errors.New("thermal: invalid node parameters")
)

// Node is a lumped thermal mass.
type Node struct {
	net         *Network
	name        string
	capacity    float64
	conductance float64
	temperature float64
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Temperature returns the node temperature in °C.
func (n *Node) Temperature() float64 { return n.temperature }

type heatSource struct {
	node  *Node
	power func() float64
}

type link struct {
	a, b        *Node
	conductance float64
}

// Network advances node temperatures with a semi-implicit Euler step: the
// ambient loss is implicit, links and sources are explicit.
type Network struct {
	ambient float64
	nodes   []*Node
	sources []heatSource
	links   []link
	log     logger.Logger
}

var _ network.ThermalNetwork = (*Network)(nil)

// New returns an empty network at the given ambient temperature.
func New(ambient float64, log logger.Logger) *Network {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Network{ambient: ambient, log: log}
}

// Ambient returns the ambient temperature.
func (n *Network) Ambient() float64 { return n.ambient }

// NewNode adds a node starting at ambient temperature.
func (n *Network) NewNode(name string, cfg network.ThermalNodeConfig) (network.ThermalNode, error) {
	if !(cfg.HeatCapacity > 0) || math.IsInf(cfg.HeatCapacity, 0) {
		return nil, fmt.Errorf("%w: %s heat capacity %v", ErrInvalidNode, name, cfg.HeatCapacity)
	}
	if !(cfg.AmbientConductance >= 0) || math.IsInf(cfg.AmbientConductance, 0) {
		return nil, fmt.Errorf("%w: %s ambient conductance %v", ErrInvalidNode, name, cfg.AmbientConductance)
	}
	node := &Node{
		net:         n,
		name:        name,
		capacity:    cfg.HeatCapacity,
		conductance: cfg.AmbientConductance,
		temperature: n.ambient,
	}
	n.nodes = append(n.nodes, node)
	return node, nil
}

// RegisterHeatSource adds a heat injection into node.
func (n *Network) RegisterHeatSource(node network.ThermalNode, power func() float64) error {
	nd, err := n.own(node)
	if err != nil {
		return err
	}
	n.sources = append(n.sources, heatSource{node: nd, power: power})
	return nil
}

// Connect links two nodes with a thermal conductance in W/K.
func (n *Network) Connect(a, b network.ThermalNode, conductance float64) error {
	na, err := n.own(a)
	if err != nil {
		return err
	}
	nb, err := n.own(b)
	if err != nil {
		return err
	}
	if !(conductance >= 0) || math.IsInf(conductance, 0) {
		return fmt.Errorf("%w: link conductance %v", ErrInvalidNode, conductance)
	}
	n.links = append(n.links, link{a: na, b: nb, conductance: conductance})
	return nil
}

// SetTemperature forces a node temperature.
func (n *Network) SetTemperature(node network.ThermalNode, t float64) error {
	nd, err := n.own(node)
	if err != nil {
		return err
	}
	nd.temperature = t
	return nil
}

// Step advances the network by dt seconds.
func (n *Network) Step(dt float64) {
	if !(dt > 0) {
		return
	}
	heat := make(map[*Node]float64, len(n.nodes))
	for _, s := range n.sources {
		p := s.power()
		if math.IsNaN(p) || math.IsInf(p, 0) {
			n.log.Warnf("dropping non-finite heat %v on %s", p, s.node.name)
			continue
		}
		heat[s.node] += p
	}
	for _, l := range n.links {
		q := l.conductance * (l.b.temperature - l.a.temperature)
		heat[l.a] += q
		heat[l.b] -= q
	}
	for _, nd := range n.nodes {
		c, g := nd.capacity, nd.conductance
		nd.temperature = (c*nd.temperature + dt*(heat[nd]+g*n.ambient)) / (c + dt*g)
	}
}

func (n *Network) own(node network.ThermalNode) (*Node, error) {
	nd, ok := node.(*Node)
	if !ok || nd.net != n {
		return nil, ErrForeignNode
	}
	return nd, nil
}

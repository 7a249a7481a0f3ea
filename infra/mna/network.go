// Package mna is a reference electrical network solver based on modified
// nodal analysis. Resistances and source voltages are pulled from callbacks
// on every solve, so devices change their stamps without re-registering.
package mna

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/batsim/core/logger"
	"github.com/kilianp07/batsim/core/network"
)

var (
	// ErrSingular is returned when the system has no unique solution.
	ErrSingular = errors.New("mna: singular system")
	// ErrNonFinite is returned when a stamp or the solution is NaN or Inf.
	ErrNonFinite = errors.New("mna: non-finite value")
	// ErrForeignTerminal is returned for terminals created by another network.
	ErrForeignTerminal = errors.New("mna: terminal belongs to another network")
)

const (
	// DefaultGmin is the leakage conductance from every node to ground.
	DefaultGmin = 1e-12
	// MinResistance is the smallest resistance stamped.
	MinResistance = 1e-9
)

// Terminal is a node of the network. The ground terminal has index -1.
type Terminal struct {
	net     *Network
	name    string
	index   int
	voltage float64
}

// Name returns the terminal name.
func (t *Terminal) Name() string { return t.name }

// Voltage returns the node voltage of the last successful solve.
func (t *Terminal) Voltage() float64 { return t.voltage }

type source struct {
	pos, neg *Terminal
	voltage  func() float64
	current  float64
}

// Current returns the current leaving the positive terminal into the
// external circuit.
func (s *source) Current() float64 { return s.current }

type resistor struct {
	a, b       *Terminal
	resistance func() float64
}

// Network is a linear resistive network with ideal voltage sources.
type Network struct {
	ground    *Terminal
	terminals []*Terminal
	sources   []*source
	resistors []resistor
	gmin      float64
	solves    int
	log       logger.Logger
}

var _ network.ElectricalNetwork = (*Network)(nil)

// Option customises a Network.
type Option func(*Network)

// WithGmin sets the leakage conductance to ground.
func WithGmin(g float64) Option { return func(n *Network) { n.gmin = g } }

// WithLogger sets the network logger.
func WithLogger(l logger.Logger) Option { return func(n *Network) { n.log = l } }

// New returns an empty network.
func New(opts ...Option) *Network {
	n := &Network{gmin: DefaultGmin, log: logger.NopLogger{}}
	n.ground = &Terminal{net: n, name: "ground", index: -1}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Ground returns the reference node.
func (n *Network) Ground() network.Terminal { return n.ground }

// NewTerminal adds a node.
func (n *Network) NewTerminal(name string) network.Terminal {
	t := &Terminal{net: n, name: name, index: len(n.terminals)}
	n.terminals = append(n.terminals, t)
	return t
}

// RegisterVoltageSource adds an ideal source holding pos at voltage() above neg.
func (n *Network) RegisterVoltageSource(pos, neg network.Terminal, voltage func() float64) (network.SourceHandle, error) {
	p, err := n.own(pos)
	if err != nil {
		return nil, err
	}
	q, err := n.own(neg)
	if err != nil {
		return nil, err
	}
	s := &source{pos: p, neg: q, voltage: voltage}
	n.sources = append(n.sources, s)
	return s, nil
}

// RegisterResistor adds a resistor between a and b.
func (n *Network) RegisterResistor(a, b network.Terminal, resistance func() float64) error {
	p, err := n.own(a)
	if err != nil {
		return err
	}
	q, err := n.own(b)
	if err != nil {
		return err
	}
	n.resistors = append(n.resistors, resistor{a: p, b: q, resistance: resistance})
	return nil
}

// Solves returns the number of successful solves.
func (n *Network) Solves() int { return n.solves }

// Solve assembles and solves the system. On error the previous solution is
// kept.
func (n *Network) Solve() error {
	nodes := len(n.terminals)
	size := nodes + len(n.sources)
	if size == 0 {
		return nil
	}
	a := mat.NewDense(size, size, nil)
	b := mat.NewVecDense(size, nil)
	for i := 0; i < nodes; i++ {
		a.Set(i, i, n.gmin)
	}
	for _, r := range n.resistors {
		v := r.resistance()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: resistance %s-%s", ErrNonFinite, r.a.name, r.b.name)
		}
		stampConductance(a, r.a.index, r.b.index, 1/math.Max(v, MinResistance))
	}
	for k, s := range n.sources {
		v := s.voltage()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: source %s-%s", ErrNonFinite, s.pos.name, s.neg.name)
		}
		row := nodes + k
		stampIncidence(a, s.pos.index, row, 1)
		stampIncidence(a, s.neg.index, row, -1)
		b.SetVec(row, v)
	}

	var lu mat.LU
	lu.Factorize(a)
	x := mat.NewVecDense(size, nil)
	if err := lu.SolveVecTo(x, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return err
		}
		if math.IsInf(float64(cond), 1) {
			return fmt.Errorf("%w: %v", ErrSingular, err)
		}
		n.log.Debugf("ill-conditioned network: %v", err)
	}
	for i := 0; i < size; i++ {
		if v := x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: solution", ErrNonFinite)
		}
	}
	for i, t := range n.terminals {
		t.voltage = x.AtVec(i)
	}
	// The branch unknown is the current entering the positive node through
	// the source; the external current is its opposite.
	for k, s := range n.sources {
		s.current = -x.AtVec(nodes + k)
	}
	n.solves++
	return nil
}

func (n *Network) own(t network.Terminal) (*Terminal, error) {
	mt, ok := t.(*Terminal)
	if !ok || mt.net != n {
		return nil, ErrForeignTerminal
	}
	return mt, nil
}

func stampConductance(a *mat.Dense, i, j int, g float64) {
	if i >= 0 {
		a.Set(i, i, a.At(i, i)+g)
	}
	if j >= 0 {
		a.Set(j, j, a.At(j, j)+g)
	}
	if i >= 0 && j >= 0 {
		a.Set(i, j, a.At(i, j)-g)
		a.Set(j, i, a.At(j, i)-g)
	}
}

func stampIncidence(a *mat.Dense, node, row int, sign float64) {
	if node < 0 {
		return
	}
	a.Set(node, row, a.At(node, row)+sign)
	a.Set(row, node, a.At(row, node)+sign)
}

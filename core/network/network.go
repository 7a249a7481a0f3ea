package network

// Terminal is a node of the shared electrical network.
type Terminal interface {
	Name() string
	// Voltage is the node voltage of the last successful solve.
	Voltage() float64
}

// SourceHandle exposes the solver output for a registered voltage source.
type SourceHandle interface {
	// Current is the current leaving the positive terminal into the
	// external circuit after the last successful solve.
	Current() float64
}

// ElectricalNetwork is the shared linear-system solver.
type ElectricalNetwork interface {
	Ground() Terminal
	NewTerminal(name string) Terminal
	// RegisterVoltageSource adds a source whose value is pulled on every solve.
	RegisterVoltageSource(pos, neg Terminal, voltage func() float64) (SourceHandle, error)
	// RegisterResistor adds a resistor whose value is pulled on every solve.
	RegisterResistor(a, b Terminal, resistance func() float64) error
	Solve() error
}

// ThermalNodeConfig describes a lumped thermal mass.
type ThermalNodeConfig struct {
	// HeatCapacity in J/K.
	HeatCapacity float64
	// AmbientConductance in W/K.
	AmbientConductance float64
}

// ThermalNode is a node of the shared thermal network.
type ThermalNode interface {
	Name() string
	Temperature() float64
}

// ThermalNetwork is the shared heat diffusion solver.
type ThermalNetwork interface {
	NewNode(name string, cfg ThermalNodeConfig) (ThermalNode, error)
	// RegisterHeatSource adds a heat injection pulled on every step, in W.
	RegisterHeatSource(node ThermalNode, power func() float64) error
	Step(dt float64)
}

// FastDevice takes part in the fast tick.
type FastDevice interface {
	PreSolve()
	// PostSolve reads the solver outputs and reports whether the device
	// changed a value the solver depends on.
	PostSolve() (resolve bool)
	// ForceLimit is called when the resolve budget is exhausted.
	ForceLimit() (resolve bool)
	// EndTick commits the tick of length dt seconds.
	EndTick(dt float64)
}

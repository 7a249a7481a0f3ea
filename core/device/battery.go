package device

import (
	"fmt"

	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/core/logger"
	"github.com/kilianp07/batsim/core/network"
	"github.com/kilianp07/batsim/core/scheduler"
)

// Options configures a Battery device.
type Options struct {
	Logger      logger.Logger
	Diagnostics battery.DiagnosticRecorder
	// OnFailure is the destructive action invoked by the thermal watchdog.
	OnFailure func()
	// Snapshot restores a persisted state instead of starting fresh.
	Snapshot *battery.Snapshot
	// SlowTickPeriod is the number of fast ticks between aging and
	// watchdog runs. Zero means every fast tick.
	SlowTickPeriod int
}

// Battery is a rechargeable battery wired into the electrical and thermal
// networks.
type Battery struct {
	id       string
	cfg      battery.Config
	state    *battery.State
	dyn      *battery.Dynamics
	aging    *battery.Aging
	watchdog *battery.Watchdog
	coupler  *battery.Coupler

	pos, neg, internal network.Terminal
	source             network.SourceHandle
	node               network.ThermalNode

	period    int
	failed    bool
	onFailure func()
	log       logger.Logger
}

var (
	_ network.FastDevice     = (*Battery)(nil)
	_ HasElectricalTerminals = (*Battery)(nil)
	_ HasThermalNodes        = (*Battery)(nil)
	_ HasSlowTickBehavior    = (*Battery)(nil)
	_ Persistable            = (*Battery)(nil)
)

// NewBattery validates cfg, builds the battery components and registers them
// with the networks. Only a configuration error aborts construction.
func NewBattery(id string, cfg battery.Config, elec network.ElectricalNetwork, therm network.ThermalNetwork, opts Options) (*Battery, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("battery %s: %w", id, err)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NopLogger{}
	}
	period := opts.SlowTickPeriod
	if period < 1 {
		period = 1
	}
	b := &Battery{id: id, cfg: cfg, period: period, onFailure: opts.OnFailure, log: opts.Logger}
	copts := []battery.Option{battery.WithDiagnostics(opts.Diagnostics), battery.WithLogger(opts.Logger)}

	b.state = battery.NewState(cfg)
	dyn, err := battery.NewDynamics(cfg, b.state, copts...)
	if err != nil {
		return nil, fmt.Errorf("battery %s: %w", id, err)
	}
	b.dyn = dyn
	if opts.Snapshot != nil {
		b.dyn.Restore(*opts.Snapshot)
	}
	if b.aging, err = battery.NewAging(cfg, b.state, b.dyn, copts...); err != nil {
		return nil, fmt.Errorf("battery %s: %w", id, err)
	}
	b.watchdog = battery.NewWatchdog(cfg, b.fail, copts...)

	if err := b.wireElectrical(elec); err != nil {
		return nil, fmt.Errorf("battery %s: %w", id, err)
	}
	if err := b.wireThermal(therm); err != nil {
		return nil, fmt.Errorf("battery %s: %w", id, err)
	}
	return b, nil
}

// wireElectrical builds: neg -[V]- internal -[R series]- pos, plus the
// self-discharge resistor across pos and neg.
func (b *Battery) wireElectrical(elec network.ElectricalNetwork) error {
	b.pos = elec.NewTerminal(b.id + ".positive")
	b.neg = elec.NewTerminal(b.id + ".negative")
	b.internal = elec.NewTerminal(b.id + ".internal")
	src, err := elec.RegisterVoltageSource(b.internal, b.neg, b.dyn.SourceVoltage)
	if err != nil {
		return fmt.Errorf("voltage source: %w", err)
	}
	b.source = src
	if err := elec.RegisterResistor(b.pos, b.internal, b.dyn.SeriesResistance); err != nil {
		return fmt.Errorf("series resistor: %w", err)
	}
	selfDischarge := b.cfg.SelfDischargeResistance
	if err := elec.RegisterResistor(b.pos, b.neg, func() float64 { return selfDischarge }); err != nil {
		return fmt.Errorf("self-discharge resistor: %w", err)
	}
	return nil
}

// wireThermal creates the battery thermal node and routes the loss in the
// internal resistance into it.
func (b *Battery) wireThermal(therm network.ThermalNetwork) error {
	node, err := therm.NewNode(b.id+".thermal", network.ThermalNodeConfig{
		HeatCapacity:       b.cfg.HeatCapacity,
		AmbientConductance: b.cfg.AmbientConductance,
	})
	if err != nil {
		return fmt.Errorf("thermal node: %w", err)
	}
	b.node = node
	b.coupler = battery.NewCoupler(b.dyn, node)
	if err := b.coupler.Attach(therm); err != nil {
		return fmt.Errorf("loss coupler: %w", err)
	}
	return nil
}

// ID returns the device identifier.
func (b *Battery) ID() string { return b.id }

// Config returns the static configuration.
func (b *Battery) Config() battery.Config { return b.cfg }

// Positive returns the positive terminal.
func (b *Battery) Positive() network.Terminal { return b.pos }

// Negative returns the negative terminal.
func (b *Battery) Negative() network.Terminal { return b.neg }

// ElectricalTerminals returns the external terminals.
func (b *Battery) ElectricalTerminals() []network.Terminal {
	return []network.Terminal{b.pos, b.neg}
}

// ThermalNodes returns the battery thermal node.
func (b *Battery) ThermalNodes() []network.ThermalNode {
	return []network.ThermalNode{b.node}
}

// PreSolve prepares the dynamics for a new tick.
func (b *Battery) PreSolve() { b.dyn.BeginTick() }

// PostSolve hands the solver current to the dynamics.
func (b *Battery) PostSolve() bool { return b.dyn.ReportCurrent(b.source.Current()) }

// ForceLimit opens the limiter if the current is still out of bounds.
func (b *Battery) ForceLimit() bool { return b.dyn.ForceLimit() }

// EndTick commits the fast tick.
func (b *Battery) EndTick(dt float64) { b.dyn.EndTick(dt) }

// SlowTasks returns aging followed by the watchdog check.
func (b *Battery) SlowTasks() []scheduler.Task {
	return []scheduler.Task{
		scheduler.NewTask(b.id+".aging", b.period, b.age),
		scheduler.NewTask(b.id+".watchdog", b.period, b.check),
	}
}

func (b *Battery) age(t scheduler.Tick) error {
	usage := b.dyn.DrainThroughput()
	if b.failed {
		return nil
	}
	b.aging.IntegrateUsage(t.Dt, usage, b.node.Temperature())
	return nil
}

func (b *Battery) check(scheduler.Tick) error {
	b.watchdog.Check(b.node.Temperature())
	return nil
}

func (b *Battery) fail() {
	b.failed = true
	b.dyn.Disable()
	if b.onFailure != nil {
		b.onFailure()
	}
}

// Capture returns the persisted state.
func (b *Battery) Capture() battery.Snapshot { return b.state.Snapshot() }

// Restore loads a persisted state, clamping corrupt values.
func (b *Battery) Restore(snap battery.Snapshot) {
	b.dyn.Restore(snap)
	b.aging.Resync()
}

// TerminalVoltage is the open-circuit voltage asserted by the device.
func (b *Battery) TerminalVoltage() float64 { return b.dyn.Voltage() }

// DischargeCurrent is the signed current, positive when discharging.
func (b *Battery) DischargeCurrent() float64 { return b.dyn.DischargeCurrent() }

// Power is the electrical power delivered by the source.
func (b *Battery) Power() float64 { return b.dyn.Voltage() * b.dyn.DischargeCurrent() }

// Charge returns the normalised stored charge.
func (b *Battery) Charge() float64 { return b.state.Charge() }

// Wear returns the normalised remaining life.
func (b *Battery) Wear() float64 { return b.state.Wear() }

// Energy returns charge times rated capacity.
func (b *Battery) Energy() float64 { return b.dyn.Energy() }

// Temperature returns the thermal node temperature.
func (b *Battery) Temperature() float64 { return b.node.Temperature() }

// Limiting reports whether the current limiter is engaged.
func (b *Battery) Limiting() bool { return b.dyn.Limiting() }

// Failed reports whether the watchdog destroyed the device.
func (b *Battery) Failed() bool { return b.failed }

// Readout formats the multimeter view of the device.
func (b *Battery) Readout() string {
	return fmt.Sprintf("Ubat: %.2fV I: %.2fA Charge: %.1f%% Life: %.1f%% Tbat: %.1f°C",
		b.TerminalVoltage(), b.DischargeCurrent(), b.Charge()*100, b.Wear()*100, b.Temperature())
}

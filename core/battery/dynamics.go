package battery

import (
	"math"

	"github.com/kilianp07/batsim/core/logger"
)

const (
	// limitTarget is the fraction of MaxCurrent the limiter aims for, so a
	// re-solved current lands inside the bound.
	limitTarget = 0.999
	// relaxBelow releases an engaged limiter once the current drops under
	// this fraction of MaxCurrent.
	relaxBelow = 0.95
	// minSeriesResistance keeps the series branch stampable.
	minSeriesResistance = 1e-6
)

// OpenCircuitVoltage is the voltage asserted by a battery with the given
// charge and wear. It is non-decreasing in both.
func OpenCircuitVoltage(cfg Config, curve *Curve, charge, wear float64) float64 {
	span := cfg.MaxVoltage - cfg.MinVoltage
	v := cfg.MinVoltage + span*curve.At(charge)
	return v * (1 - cfg.WearVoltageSag*(1-clamp01(wear)))
}

// Dynamics produces the fast-tick electrical behaviour of a battery: the
// source voltage handed to the network solver, the series resistance
// (internal plus current limiter) and the resulting current and loss.
type Dynamics struct {
	cfg   Config
	curve *Curve
	state *State
	rec   DiagnosticRecorder
	log   logger.Logger

	current     float64
	resistance  float64
	limiter     float64
	overCurrent bool
	disabled    bool
	lastVoltage float64

	// probe is the previous (series resistance, 1/|I|) point of this tick.
	probeR   float64
	probeInv float64
	probeOK  bool

	throughput    float64
	absThroughput float64
	elapsed       float64
}

// NewDynamics validates cfg and binds the dynamics to state.
func NewDynamics(cfg Config, state *State, opts ...Option) (*Dynamics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	curve, err := NewCurve(cfg.VoltageCurve)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	d := &Dynamics{cfg: cfg, curve: curve, state: state, rec: o.rec, log: o.log}
	d.refresh()
	d.lastVoltage = d.Voltage()
	return d, nil
}

// Voltage computes the open-circuit voltage from the current state.
func (d *Dynamics) Voltage() float64 {
	if d.disabled {
		return 0
	}
	return OpenCircuitVoltage(d.cfg, d.curve, d.state.charge, d.state.wear)
}

// SourceVoltage is the callback registered with the network solver. It never
// returns a non-finite value: on divergence the last valid voltage is kept.
func (d *Dynamics) SourceVoltage() float64 {
	v := d.Voltage()
	if !finite(v) {
		d.rec.RecordDiagnostic(Diagnostic{Kind: DiagDivergence, Source: "dynamics", Detail: "non-finite source voltage", Value: v})
		return d.lastVoltage
	}
	d.lastVoltage = v
	return v
}

// SeriesResistance is the resistance in series with the voltage source: the
// wear-dependent internal resistance plus the limiter.
func (d *Dynamics) SeriesResistance() float64 {
	if d.disabled {
		return HighImpedance
	}
	return math.Max(d.resistance+d.limiter, minSeriesResistance)
}

// InternalResistance returns the wear-dependent internal resistance.
func (d *Dynamics) InternalResistance() float64 { return d.resistance }

// Limiter returns the extra series resistance inserted by current limiting.
func (d *Dynamics) Limiter() float64 { return d.limiter }

// Limiting reports whether the limiter is engaged.
func (d *Dynamics) Limiting() bool { return d.limiter > 0 }

// DischargeCurrent is the signed current through the device, positive when
// discharging. Its magnitude never exceeds MaxCurrent.
func (d *Dynamics) DischargeCurrent() float64 { return d.current }

// InstantaneousLossPower is the ohmic loss in the internal resistance.
func (d *Dynamics) InstantaneousLossPower() float64 {
	return d.current * d.current * d.resistance
}

// Energy is the stored charge in capacity units.
func (d *Dynamics) Energy() float64 { return d.state.charge * d.cfg.RatedCapacity }

// BeginTick forgets the secant point of the previous tick.
func (d *Dynamics) BeginTick() { d.probeOK = false }

// ReportCurrent takes the current the solver computed through the voltage
// source. The stored current is clamped to ±MaxCurrent; when the solver
// current is out of bounds the limiter is retuned and true is returned so
// the network is solved again with the new series resistance.
func (d *Dynamics) ReportCurrent(measured float64) bool {
	if !finite(measured) {
		d.rec.RecordDiagnostic(Diagnostic{Kind: DiagDivergence, Source: "dynamics", Detail: "non-finite current from solver", Value: measured})
		return false
	}
	imax := d.cfg.MaxCurrent
	abs := math.Abs(measured)
	d.overCurrent = abs > imax
	resolve := false
	switch {
	case d.disabled:
	case d.overCurrent:
		d.rec.RecordDiagnostic(Diagnostic{Kind: DiagLimit, Source: "dynamics", Detail: "over-current", Value: measured})
		d.log.Debugf("over-current %.3f A, limiter %.4f ohm", measured, d.limiter)
		resolve = d.retune(abs)
	case d.limiter > 0 && abs < imax*relaxBelow:
		resolve = d.retune(abs)
	}
	d.current = math.Max(-imax, math.Min(imax, measured))
	return resolve
}

// retune moves the limiter so the next solve carries limitTarget·MaxCurrent.
// For a linear network 1/|I| is affine in the series resistance, so the
// second point of a tick lands on target.
func (d *Dynamics) retune(abs float64) bool {
	series := d.SeriesResistance()
	target := d.cfg.MaxCurrent * limitTarget
	var next float64
	switch {
	case abs == 0:
		next = 0
	case d.probeOK && series != d.probeR:
		inv := 1 / abs
		slope := (inv - d.probeInv) / (series - d.probeR)
		if slope > 0 {
			next = series + (1/target-inv)/slope
		} else {
			next = series * abs / target
		}
	default:
		next = series * abs / target
	}
	if abs > 0 {
		d.probeR, d.probeInv, d.probeOK = series, 1/abs, true
	}
	limiter := math.Min(math.Max(next-d.resistance, 0), HighImpedance)
	if math.Abs(limiter-d.limiter) <= 1e-12*math.Max(1, d.limiter) {
		return false
	}
	d.limiter = limiter
	return true
}

// ForceLimit opens the series branch when the current is still out of bounds
// after the resolve budget is spent. It returns true if a final solve is
// needed.
func (d *Dynamics) ForceLimit() bool {
	if !d.overCurrent || d.disabled || d.limiter >= HighImpedance {
		return false
	}
	d.limiter = HighImpedance
	d.rec.RecordDiagnostic(Diagnostic{Kind: DiagLimit, Source: "dynamics", Detail: "limiter forced open", Value: d.current})
	d.log.Warnf("current limiter forced to high impedance")
	return true
}

// EndTick accumulates the charge moved during a fast tick of length dt.
func (d *Dynamics) EndTick(dt float64) {
	if !finite(dt) || dt <= 0 {
		return
	}
	d.throughput += d.current * dt
	d.absThroughput += math.Abs(d.current) * dt
	d.elapsed += dt
}

// Usage is the charge moved over a slow period.
type Usage struct {
	// Charge is signed, positive when discharging (A·s).
	Charge float64
	// AbsCharge ignores the direction of the current (A·s).
	AbsCharge float64
	Elapsed   float64
}

// DrainThroughput returns and resets the usage accumulated since the
// previous call.
func (d *Dynamics) DrainThroughput() Usage {
	u := Usage{Charge: d.throughput, AbsCharge: d.absThroughput, Elapsed: d.elapsed}
	d.throughput, d.absThroughput, d.elapsed = 0, 0, 0
	return u
}

// Restore replaces the state with a snapshot, clamping corrupt values.
func (d *Dynamics) Restore(snap Snapshot) {
	d.state.restore(snap, d.cfg, d.rec)
	d.refresh()
	d.lastVoltage = d.Voltage()
}

// Disable turns the device into an open circuit. It is used once the
// device has been destroyed.
func (d *Dynamics) Disable() {
	d.disabled = true
	d.current = 0
}

// refresh recomputes the wear-dependent internal resistance.
func (d *Dynamics) refresh() {
	d.resistance = d.cfg.InternalResistance * (1 + d.cfg.ResistanceWearFactor*(1-d.state.wear))
}

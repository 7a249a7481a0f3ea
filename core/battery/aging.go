package battery

import (
	"math"

	"github.com/kilianp07/batsim/core/logger"
)

// Aging integrates usage into charge and wear on the slow cadence.
type Aging struct {
	cfg      Config
	state    *State
	dyn      *Dynamics
	rec      DiagnosticRecorder
	log      logger.Logger
	depleted bool
}

// NewAging binds aging to the state shared with dyn.
func NewAging(cfg Config, state *State, dyn *Dynamics, opts ...Option) (*Aging, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Aging{cfg: cfg, state: state, dyn: dyn, rec: o.rec, log: o.log, depleted: state.wear == 0}, nil
}

// Resync rereads the depletion flag after the state was replaced.
func (a *Aging) Resync() {
	a.depleted = a.state.wear == 0
}

// Stress returns the normalised stress for a current and temperature,
// capped at StressCeiling.
func (a *Aging) Stress(current, temperature float64) float64 {
	s := a.cfg.CurrentStressWeight * math.Abs(current) / a.cfg.MaxCurrent
	if over := temperature - a.cfg.NominalTemperature; over > 0 {
		s += a.cfg.ThermalStressWeight * over / a.cfg.ThermalStressSpan
	}
	return math.Min(s, a.cfg.StressCeiling)
}

// Integrate advances charge and wear over dt seconds of a constant
// discharge current (negative when charging) at the given temperature.
func (a *Aging) Integrate(dt, current, temperature float64) {
	a.integrate(dt, current, math.Abs(current), temperature)
}

// IntegrateUsage advances charge and wear over dt seconds of recorded usage.
// Charge follows the signed mean current, stress the mean magnitude.
func (a *Aging) IntegrateUsage(dt float64, u Usage, temperature float64) {
	if !finite(dt) || dt <= 0 {
		return
	}
	a.integrate(dt, u.Charge/dt, u.AbsCharge/dt, temperature)
}

func (a *Aging) integrate(dt, current, stressCurrent, temperature float64) {
	if !finite(dt) || dt <= 0 {
		return
	}
	if !finite(current) || !finite(stressCurrent) {
		a.rec.RecordDiagnostic(Diagnostic{Kind: DiagDivergence, Source: "aging", Detail: "non-finite current", Value: current})
		current, stressCurrent = 0, 0
	}
	if !finite(temperature) {
		a.rec.RecordDiagnostic(Diagnostic{Kind: DiagDivergence, Source: "aging", Detail: "non-finite temperature", Value: temperature})
		temperature = a.cfg.NominalTemperature
	}

	charge := a.state.charge - current*dt/a.cfg.RatedCapacity
	if charge < 0 || charge > 1 {
		a.rec.RecordDiagnostic(Diagnostic{Kind: DiagClamp, Source: "aging", Detail: "charge out of range", Value: charge})
		charge = clamp01(charge)
	}
	a.state.charge = charge

	decay := a.cfg.DecayAtCeiling * a.Stress(stressCurrent, temperature) / a.cfg.StressCeiling * dt
	a.state.wear = clamp01(a.state.wear - decay)
	if a.state.wear == 0 && !a.depleted {
		a.depleted = true
		a.rec.RecordDiagnostic(Diagnostic{Kind: DiagDepleted, Source: "aging", Detail: "wear exhausted"})
		a.log.Warnf("battery fully degraded")
	}
	if a.dyn != nil {
		a.dyn.refresh()
	}
}

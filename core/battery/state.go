package battery

import "math"

// Snapshot is the persisted form of a battery: nothing else survives a
// save/load or a transfer between live and stored form.
type Snapshot struct {
	Charge float64 `json:"charge"`
	Wear   float64 `json:"wear"`
}

// State is the private long-lived state of one battery. Only Dynamics and
// Aging mutate it.
type State struct {
	charge float64
	wear   float64
}

// NewState returns the state of a freshly instantiated battery.
func NewState(cfg Config) *State {
	return &State{charge: clamp01(cfg.InitialCharge), wear: 1}
}

// Charge returns the normalised stored charge.
func (s *State) Charge() float64 { return s.charge }

// Wear returns the normalised remaining life, 1 for a new battery.
func (s *State) Wear() float64 { return s.wear }

// Snapshot captures the persisted fields.
func (s *State) Snapshot() Snapshot { return Snapshot{Charge: s.charge, Wear: s.wear} }

// restore loads a snapshot. Out-of-range values are clamped and NaN falls
// back to the fresh default; each correction is reported.
func (s *State) restore(snap Snapshot, cfg Config, rec DiagnosticRecorder) {
	s.charge = sanitize(snap.Charge, clamp01(cfg.InitialCharge), "charge", rec)
	s.wear = sanitize(snap.Wear, 1, "wear", rec)
}

func sanitize(v, fallback float64, field string, rec DiagnosticRecorder) float64 {
	switch {
	case math.IsNaN(v):
		rec.RecordDiagnostic(Diagnostic{Kind: DiagClamp, Source: "snapshot", Detail: field + " is NaN", Value: v})
		return fallback
	case v < 0 || v > 1:
		rec.RecordDiagnostic(Diagnostic{Kind: DiagClamp, Source: "snapshot", Detail: field + " out of range", Value: v})
		return clamp01(v)
	}
	return v
}

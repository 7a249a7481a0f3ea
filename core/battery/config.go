package battery

import "math"

// HighImpedance is the resistance used to open a branch without removing it
// from the network.
const HighImpedance = 1e9

// DefaultVoltageCurve is the normalised open-circuit voltage shape, sampled at
// evenly spaced charge levels from empty to full.
var DefaultVoltageCurve = []float64{0, 0.55, 0.72, 0.8, 0.85, 0.89, 0.93, 0.97, 1}

// Config holds the static parameters of a battery. It is passed by value at
// construction and never mutated afterwards.
type Config struct {
	// MinVoltage is the open-circuit voltage of an empty, new battery.
	MinVoltage float64 `json:"min_voltage"`
	// MaxVoltage is the open-circuit voltage of a full, new battery.
	MaxVoltage float64 `json:"max_voltage"`
	// VoltageCurve is the normalised voltage shape over charge. It must start
	// at 0, end at 1 and never decrease.
	VoltageCurve []float64 `json:"voltage_curve"`
	// RatedCapacity is the charge stored at full charge, in A·s.
	RatedCapacity float64 `json:"rated_capacity"`
	// MaxCurrent bounds the current magnitude through the device, in A.
	MaxCurrent float64 `json:"max_current"`
	// InternalResistance is the series resistance of a new battery, in Ω.
	InternalResistance float64 `json:"internal_resistance"`
	// InitialCharge is the charge of a freshly instantiated battery.
	InitialCharge float64 `json:"initial_charge"`
	// SelfDischargeResistance is placed across the terminals.
	SelfDischargeResistance float64 `json:"self_discharge_resistance"`

	// WearVoltageSag is the fraction of open-circuit voltage lost at wear 0.
	WearVoltageSag float64 `json:"wear_voltage_sag"`
	// ResistanceWearFactor scales the internal resistance growth with wear:
	// R = R0·(1 + factor·(1 − wear)).
	ResistanceWearFactor float64 `json:"resistance_wear_factor"`
	// NominalTemperature is the temperature below which heat causes no wear.
	NominalTemperature float64 `json:"nominal_temperature"`
	// ThermalStressSpan is the temperature rise above nominal worth one unit
	// of stress.
	ThermalStressSpan   float64 `json:"thermal_stress_span"`
	CurrentStressWeight float64 `json:"current_stress_weight"`
	ThermalStressWeight float64 `json:"thermal_stress_weight"`
	// StressCeiling caps the stress; DecayAtCeiling is the wear lost per
	// second at that stress.
	StressCeiling  float64 `json:"stress_ceiling"`
	DecayAtCeiling float64 `json:"decay_at_ceiling"`

	// MaxTemperature is the watchdog ceiling.
	MaxTemperature float64 `json:"max_temperature"`
	// DebounceSamples is the number of consecutive slow-tick samples above
	// MaxTemperature required to fire the watchdog.
	DebounceSamples int `json:"debounce_samples"`
	// HeatCapacity of the battery thermal node, in J/K.
	HeatCapacity float64 `json:"heat_capacity"`
	// AmbientConductance of the battery thermal node to ambient, in W/K.
	AmbientConductance float64 `json:"ambient_conductance"`
}

// DefaultConfig returns a complete configuration for a 48 V class battery.
func DefaultConfig() Config {
	curve := make([]float64, len(DefaultVoltageCurve))
	copy(curve, DefaultVoltageCurve)
	return Config{
		MinVoltage:              0,
		MaxVoltage:              52,
		VoltageCurve:            curve,
		RatedCapacity:           36000,
		MaxCurrent:              50,
		InternalResistance:      0.05,
		InitialCharge:           0.5,
		SelfDischargeResistance: HighImpedance,
		WearVoltageSag:          0.1,
		ResistanceWearFactor:    2,
		NominalTemperature:      25,
		ThermalStressSpan:       40,
		CurrentStressWeight:     1,
		ThermalStressWeight:     1,
		StressCeiling:           2,
		DecayAtCeiling:          1e-6,
		MaxTemperature:          60,
		DebounceSamples:         1,
		HeatCapacity:            2000,
		AmbientConductance:      2,
	}
}

// SetDefaults fills optional fields for which zero is never meaningful.
func (c *Config) SetDefaults() {
	if len(c.VoltageCurve) == 0 {
		c.VoltageCurve = append([]float64(nil), DefaultVoltageCurve...)
	}
	if c.SelfDischargeResistance == 0 {
		c.SelfDischargeResistance = HighImpedance
	}
	if c.DebounceSamples == 0 {
		c.DebounceSamples = 1
	}
}

// Validate rejects physically invalid values. It never adjusts them.
//
//gocyclo:ignore
func (c Config) Validate() error {
	switch {
	case !finite(c.MaxVoltage) || c.MaxVoltage <= 0:
		return invalid("max_voltage", c.MaxVoltage, "must be positive")
	case !finite(c.MinVoltage) || c.MinVoltage < 0:
		return invalid("min_voltage", c.MinVoltage, "must not be negative")
	case c.MinVoltage > c.MaxVoltage:
		return invalid("min_voltage", c.MinVoltage, "exceeds max_voltage")
	case !finite(c.RatedCapacity) || c.RatedCapacity <= 0:
		return invalid("rated_capacity", c.RatedCapacity, "must be positive")
	case !finite(c.MaxCurrent) || c.MaxCurrent <= 0:
		return invalid("max_current", c.MaxCurrent, "must be positive")
	case !finite(c.InternalResistance) || c.InternalResistance < 0:
		return invalid("internal_resistance", c.InternalResistance, "must not be negative")
	case !finite(c.InitialCharge) || c.InitialCharge < 0 || c.InitialCharge > 1:
		return invalid("initial_charge", c.InitialCharge, "must be within [0,1]")
	case !finite(c.SelfDischargeResistance) || c.SelfDischargeResistance <= 0:
		return invalid("self_discharge_resistance", c.SelfDischargeResistance, "must be positive")
	case !finite(c.WearVoltageSag) || c.WearVoltageSag < 0 || c.WearVoltageSag >= 1:
		return invalid("wear_voltage_sag", c.WearVoltageSag, "must be within [0,1)")
	case !finite(c.ResistanceWearFactor) || c.ResistanceWearFactor < 0:
		return invalid("resistance_wear_factor", c.ResistanceWearFactor, "must not be negative")
	case !finite(c.NominalTemperature):
		return invalid("nominal_temperature", c.NominalTemperature, "must be finite")
	case !finite(c.ThermalStressSpan) || c.ThermalStressSpan <= 0:
		return invalid("thermal_stress_span", c.ThermalStressSpan, "must be positive")
	case !finite(c.CurrentStressWeight) || c.CurrentStressWeight < 0:
		return invalid("current_stress_weight", c.CurrentStressWeight, "must not be negative")
	case !finite(c.ThermalStressWeight) || c.ThermalStressWeight < 0:
		return invalid("thermal_stress_weight", c.ThermalStressWeight, "must not be negative")
	case !finite(c.StressCeiling) || c.StressCeiling <= 0:
		return invalid("stress_ceiling", c.StressCeiling, "must be positive")
	case !finite(c.DecayAtCeiling) || c.DecayAtCeiling < 0:
		return invalid("decay_at_ceiling", c.DecayAtCeiling, "must not be negative")
	case !finite(c.MaxTemperature):
		return invalid("max_temperature", c.MaxTemperature, "must be finite")
	case c.DebounceSamples < 1:
		return invalid("debounce_samples", c.DebounceSamples, "must be at least 1")
	case !finite(c.HeatCapacity) || c.HeatCapacity <= 0:
		return invalid("heat_capacity", c.HeatCapacity, "must be positive")
	case !finite(c.AmbientConductance) || c.AmbientConductance < 0:
		return invalid("ambient_conductance", c.AmbientConductance, "must not be negative")
	}
	return validateCurve(c.VoltageCurve)
}

func validateCurve(curve []float64) error {
	if len(curve) < 2 {
		return invalid("voltage_curve", len(curve), "needs at least two points")
	}
	if curve[0] != 0 || curve[len(curve)-1] != 1 {
		return invalid("voltage_curve", curve, "must start at 0 and end at 1")
	}
	for i, v := range curve {
		if !finite(v) {
			return invalid("voltage_curve", v, "must be finite")
		}
		if i > 0 && v < curve[i-1] {
			return invalid("voltage_curve", curve, "must not decrease")
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

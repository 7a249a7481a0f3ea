package battery

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultConfigCopiesCurve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VoltageCurve[1] = 0.1
	if DefaultVoltageCurve[1] != 0.55 {
		t.Fatalf("default curve mutated through config")
	}
}

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if len(cfg.VoltageCurve) != len(DefaultVoltageCurve) {
		t.Fatalf("curve not defaulted")
	}
	if cfg.SelfDischargeResistance != HighImpedance || cfg.DebounceSamples != 1 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(*Config)
	}{
		{"max_voltage", func(c *Config) { c.MaxVoltage = 0 }},
		{"min_voltage", func(c *Config) { c.MinVoltage = -1 }},
		{"min_voltage", func(c *Config) { c.MinVoltage = c.MaxVoltage + 1 }},
		{"rated_capacity", func(c *Config) { c.RatedCapacity = 0 }},
		{"rated_capacity", func(c *Config) { c.RatedCapacity = math.NaN() }},
		{"max_current", func(c *Config) { c.MaxCurrent = -5 }},
		{"internal_resistance", func(c *Config) { c.InternalResistance = -0.1 }},
		{"initial_charge", func(c *Config) { c.InitialCharge = 1.5 }},
		{"self_discharge_resistance", func(c *Config) { c.SelfDischargeResistance = 0 }},
		{"wear_voltage_sag", func(c *Config) { c.WearVoltageSag = 1 }},
		{"thermal_stress_span", func(c *Config) { c.ThermalStressSpan = 0 }},
		{"stress_ceiling", func(c *Config) { c.StressCeiling = 0 }},
		{"decay_at_ceiling", func(c *Config) { c.DecayAtCeiling = -1 }},
		{"max_temperature", func(c *Config) { c.MaxTemperature = math.Inf(1) }},
		{"debounce_samples", func(c *Config) { c.DebounceSamples = 0 }},
		{"heat_capacity", func(c *Config) { c.HeatCapacity = 0 }},
		{"voltage_curve", func(c *Config) { c.VoltageCurve = []float64{0} }},
		{"voltage_curve", func(c *Config) { c.VoltageCurve = []float64{0, 0.6, 0.5, 1} }},
		{"voltage_curve", func(c *Config) { c.VoltageCurve = []float64{0.1, 1} }},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		c.mutate(&cfg)
		err := cfg.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", c.field, err)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Field != c.field {
			t.Fatalf("expected field %s, got %v", c.field, err)
		}
	}
}

func TestConstructorsRejectInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatedCapacity = -1
	if _, err := NewDynamics(cfg, NewState(cfg)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("dynamics: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewAging(cfg, NewState(cfg), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("aging: expected ErrInvalidConfig, got %v", err)
	}
}

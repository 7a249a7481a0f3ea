package config

import (
	"fmt"
	"math"

	"github.com/kilianp07/batsim/core/battery"
)

// BatteryConfig declares one battery device and the circuit around it.
type BatteryConfig struct {
	ID      string         `json:"id"`
	Battery battery.Config `json:",squash"`
	Load    LoadConfig     `json:"load"`
}

// LoadConfig describes what is connected across the battery terminals.
type LoadConfig struct {
	// Resistance of the load in Ω. Zero leaves the terminals open.
	Resistance float64 `json:"resistance"`
	// ChargerVoltage enables a charger source when positive.
	ChargerVoltage float64 `json:"charger_voltage"`
	// ChargerResistance is the charger output resistance in Ω.
	ChargerResistance float64 `json:"charger_resistance"`
}

// SetDefaults names unnamed batteries and fills battery defaults.
func (b *BatteryConfig) SetDefaults(index int) {
	if b.ID == "" {
		b.ID = fmt.Sprintf("battery-%d", index)
	}
	b.Battery.SetDefaults()
	if b.Load.ChargerVoltage > 0 && b.Load.ChargerResistance == 0 {
		b.Load.ChargerResistance = 0.1
	}
}

// Validate checks the battery and its load.
func (b BatteryConfig) Validate() error {
	if err := b.Battery.Validate(); err != nil {
		return err
	}
	return b.Load.Validate()
}

// Validate checks the load values.
func (l LoadConfig) Validate() error {
	for name, v := range map[string]float64{
		"resistance":         l.Resistance,
		"charger_voltage":    l.ChargerVoltage,
		"charger_resistance": l.ChargerResistance,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("load %s must be finite and not negative", name)
		}
	}
	if l.ChargerVoltage > 0 && l.ChargerResistance <= 0 {
		return fmt.Errorf("load charger_resistance must be positive")
	}
	return nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/batsim/core/metrics"
)

// PromSink exposes the latest battery state as Prometheus gauges and counts
// diagnostics per kind.
type PromSink struct {
	voltage     *prometheus.GaugeVec
	current     *prometheus.GaugeVec
	power       *prometheus.GaugeVec
	charge      *prometheus.GaugeVec
	wear        *prometheus.GaugeVec
	energy      *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	failed      *prometheus.GaugeVec
	diagnostics *prometheus.CounterVec
}

// NewPromSink registers battery metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	gauges := []struct {
		dst  **prometheus.GaugeVec
		name string
		help string
	}{
		{&s.voltage, "battery_voltage_volts", "Open-circuit voltage asserted by the battery"},
		{&s.current, "battery_current_amperes", "Discharge current, negative when charging"},
		{&s.power, "battery_power_watts", "Electrical power delivered by the battery"},
		{&s.charge, "battery_charge_ratio", "Normalised stored charge"},
		{&s.wear, "battery_wear_ratio", "Normalised remaining life"},
		{&s.energy, "battery_energy_ampere_seconds", "Stored charge in capacity units"},
		{&s.temperature, "battery_temperature_celsius", "Battery thermal node temperature"},
		{&s.failed, "battery_failed", "1 once the thermal watchdog destroyed the battery"},
	}
	for _, g := range gauges {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: g.name, Help: g.help}, []string{"device_id"})
		if err := reg.Register(vec); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			vec = are.ExistingCollector.(*prometheus.GaugeVec)
		}
		*g.dst = vec
	}
	diags := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "battery_diagnostics_total",
		Help: "Diagnostics raised by battery devices",
	}, []string{"device_id", "kind"})
	if err := reg.Register(diags); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			diags = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	s.diagnostics = diags
	return s, nil
}

// RecordBatteryState sets the gauges of the device.
func (s *PromSink) RecordBatteryState(ev coremetrics.BatteryStateEvent) error {
	id := ev.DeviceID
	s.voltage.WithLabelValues(id).Set(ev.Voltage)
	s.current.WithLabelValues(id).Set(ev.Current)
	s.power.WithLabelValues(id).Set(ev.Power)
	s.charge.WithLabelValues(id).Set(ev.Charge)
	s.wear.WithLabelValues(id).Set(ev.Wear)
	s.energy.WithLabelValues(id).Set(ev.Energy)
	s.temperature.WithLabelValues(id).Set(ev.Temperature)
	failed := 0.0
	if ev.Failed {
		failed = 1
	}
	s.failed.WithLabelValues(id).Set(failed)
	return nil
}

// RecordDiagnostic increments the diagnostic counter.
func (s *PromSink) RecordDiagnostic(ev coremetrics.DiagnosticEvent) error {
	s.diagnostics.WithLabelValues(ev.DeviceID, ev.Kind).Inc()
	return nil
}

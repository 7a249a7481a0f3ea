package metrics

import (
	"errors"
	"io"
	"time"
)

// BatteryStateEvent is a periodic snapshot of one battery device.
type BatteryStateEvent struct {
	DeviceID    string    `json:"device_id"`
	RunID       string    `json:"run_id"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Power       float64   `json:"power"`
	Charge      float64   `json:"charge"`
	Wear        float64   `json:"wear"`
	Energy      float64   `json:"energy"`
	Temperature float64   `json:"temperature"`
	Limiting    bool      `json:"limiting"`
	Failed      bool      `json:"failed"`
	SimTime     float64   `json:"sim_time"`
	Time        time.Time `json:"time"`
}

// MetricsSink records battery state snapshots for observability purposes.
type MetricsSink interface {
	RecordBatteryState(ev BatteryStateEvent) error
}

// DiagnosticEvent is a diagnostic raised by a device, tagged with its origin.
type DiagnosticEvent struct {
	DeviceID string    `json:"device_id"`
	RunID    string    `json:"run_id"`
	Kind     string    `json:"kind"`
	Source   string    `json:"source"`
	Detail   string    `json:"detail"`
	Value    float64   `json:"value"`
	SimTime  float64   `json:"sim_time"`
	Time     time.Time `json:"time"`
}

// DiagnosticRecorder records device diagnostics.
type DiagnosticRecorder interface {
	RecordDiagnostic(ev DiagnosticEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordBatteryState(BatteryStateEvent) error { return nil }
func (NopSink) RecordDiagnostic(DiagnosticEvent) error     { return nil }

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordBatteryState forwards the snapshot to every sink. All sinks are
// attempted; their errors are joined.
func (m *MultiSink) RecordBatteryState(ev BatteryStateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordBatteryState(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDiagnostic forwards diagnostics to the sinks supporting them.
func (m *MultiSink) RecordDiagnostic(ev DiagnosticEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(DiagnosticRecorder); ok {
			if err := rec.RecordDiagnostic(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink holding resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

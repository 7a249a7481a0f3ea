package battery

import (
	"math"

	"github.com/kilianp07/batsim/core/logger"
)

// WatchdogState is the state of a ThermalWatchdog.
type WatchdogState int

const (
	// Armed is the only stable state.
	Armed WatchdogState = iota
	// Triggered is terminal; the watchdog never re-arms.
	Triggered
)

func (s WatchdogState) String() string {
	if s == Triggered {
		return "triggered"
	}
	return "armed"
}

// Watchdog fires a destructive action once the temperature exceeds the
// configured ceiling for DebounceSamples consecutive slow-tick samples.
type Watchdog struct {
	ceiling  float64
	debounce int
	over     int
	state    WatchdogState
	action   func()
	rec      DiagnosticRecorder
	log      logger.Logger
}

// NewWatchdog returns an armed watchdog. action may be nil.
func NewWatchdog(cfg Config, action func(), opts ...Option) *Watchdog {
	o := buildOptions(opts)
	debounce := cfg.DebounceSamples
	if debounce < 1 {
		debounce = 1
	}
	return &Watchdog{ceiling: cfg.MaxTemperature, debounce: debounce, action: action, rec: o.rec, log: o.log}
}

// State returns the current state.
func (w *Watchdog) State() WatchdogState { return w.state }

// Triggered reports whether the destructive action has been invoked.
func (w *Watchdog) Triggered() bool { return w.state == Triggered }

// Check samples the temperature. It returns true only on the call that
// fires the action.
func (w *Watchdog) Check(temperature float64) bool {
	if w.state == Triggered {
		return false
	}
	if math.IsNaN(temperature) || math.IsInf(temperature, -1) {
		w.rec.RecordDiagnostic(Diagnostic{Kind: DiagDivergence, Source: "watchdog", Detail: "non-finite temperature", Value: temperature})
		return false
	}
	if temperature <= w.ceiling {
		w.over = 0
		return false
	}
	w.over++
	if w.over < w.debounce {
		return false
	}
	w.state = Triggered
	w.rec.RecordDiagnostic(Diagnostic{Kind: DiagWatchdog, Source: "watchdog", Detail: "temperature above ceiling", Value: temperature})
	w.log.Errorf("thermal watchdog fired at %.2f (ceiling %.2f)", temperature, w.ceiling)
	if w.action != nil {
		w.action()
	}
	return true
}

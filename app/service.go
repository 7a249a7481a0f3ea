// Package app assembles a simulation from configuration: the electrical and
// thermal networks, the battery devices, the scheduler and the telemetry
// sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/kilianp07/batsim/config"
	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/core/device"
	coremetrics "github.com/kilianp07/batsim/core/metrics"
	"github.com/kilianp07/batsim/core/network"
	"github.com/kilianp07/batsim/core/scheduler"
	"github.com/kilianp07/batsim/infra/logger"
	"github.com/kilianp07/batsim/infra/metrics"
	"github.com/kilianp07/batsim/infra/mna"
	"github.com/kilianp07/batsim/infra/mqtt"
	"github.com/kilianp07/batsim/infra/snapshot"
	"github.com/kilianp07/batsim/infra/thermal"
	"github.com/kilianp07/batsim/internal/eventbus"
)

// groundResistance ties every battery negative terminal to ground.
const groundResistance = 1e-3

// Option customises a Service.
type Option func(*Service)

// WithSink adds a telemetry sink next to the configured ones.
func WithSink(s coremetrics.MetricsSink) Option {
	return func(svc *Service) { svc.extra = append(svc.extra, s) }
}

// WithStore replaces the configured snapshot store.
func WithStore(st snapshot.Store) Option {
	return func(svc *Service) { svc.store = st }
}

// Service runs the tick loop of one simulation.
type Service struct {
	cfg       *config.Config
	elec      *mna.Network
	therm     *thermal.Network
	coord     *network.Coordinator
	sched     *scheduler.Scheduler
	batteries []*device.Battery

	sink  coremetrics.MetricsSink
	extra []coremetrics.MetricsSink
	store snapshot.Store

	diags         *eventbus.TypedBus[coremetrics.DiagnosticEvent]
	collectorDone <-chan struct{}
	cancel        context.CancelFunc

	stop     context.CancelFunc
	failures []string
	log      logger.Logger
}

// New builds the simulation described by cfg. Stored snapshots are restored
// before the devices join the networks.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:   cfg,
		diags: eventbus.NewTyped[coremetrics.DiagnosticEvent](),
		log:   logger.New("service"),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.buildSinks(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	var rec coremetrics.DiagnosticRecorder
	if r, ok := s.sink.(coremetrics.DiagnosticRecorder); ok {
		rec = r
	}
	s.collectorDone = metrics.StartDiagnosticCollector(ctx, s.diags, rec, logger.New("diagnostics"))

	restored, err := s.openStore()
	if err != nil {
		_ = s.shutdown()
		return nil, err
	}

	sim := cfg.Simulation
	s.elec = mna.New(mna.WithLogger(logger.New("mna")))
	s.therm = thermal.New(sim.AmbientTemperature, logger.New("thermal"))
	s.coord = network.NewCoordinator(s.elec, s.therm, sim.Resolves(), logger.New("coordinator"))
	s.sched, err = scheduler.New(sim.Config, logger.New("scheduler"))
	if err != nil {
		_ = s.shutdown()
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if err := s.sched.Add(scheduler.NewTask("network", 1, s.step)); err != nil {
		_ = s.shutdown()
		return nil, err
	}

	for _, bc := range cfg.Batteries {
		b, err := s.addBattery(bc, restored)
		if err != nil {
			_ = s.shutdown()
			return nil, err
		}
		if err := s.sched.Add(b.SlowTasks()...); err != nil {
			_ = s.shutdown()
			return nil, err
		}
	}
	if err := s.sched.Add(scheduler.NewTask("telemetry", sim.Publish(), s.publish)); err != nil {
		_ = s.shutdown()
		return nil, err
	}
	s.log.Infof("simulation %s ready with %d batteries", sim.RunID, len(s.batteries))
	return s, nil
}

func (s *Service) buildSinks() error {
	base, err := coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sinks: %w", err)
	}
	sinks := []coremetrics.MetricsSink{base}
	if s.cfg.Metrics.PrometheusAddr != "" {
		prom, err := metrics.NewPromSink()
		if err != nil {
			return fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, prom)
	}
	if s.cfg.MQTT.Enabled() {
		ms, err := mqtt.NewSink(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt sink: %w", err)
		}
		sinks = append(sinks, ms)
	}
	sinks = append(sinks, s.extra...)
	if len(sinks) == 1 {
		s.sink = sinks[0]
	} else {
		s.sink = coremetrics.NewMultiSink(sinks...)
	}
	return nil
}

func (s *Service) openStore() (map[string]snapshot.Record, error) {
	if s.store == nil && s.cfg.Snapshot.Enabled() {
		st, err := snapshot.NewJSONLStore(s.cfg.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		s.store = st
	}
	if s.store == nil {
		return nil, nil
	}
	restored, err := s.store.LatestAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	return restored, nil
}

// addBattery builds one device and the circuit around it: the negative
// terminal tied to ground, an optional load across the terminals and an
// optional charger source behind its output resistance.
func (s *Service) addBattery(bc config.BatteryConfig, restored map[string]snapshot.Record) (*device.Battery, error) {
	id := bc.ID
	opts := device.Options{
		Logger:         logger.New("battery/" + id),
		Diagnostics:    s.diagnosticsFor(id),
		OnFailure:      func() { s.onFailure(id) },
		SlowTickPeriod: s.cfg.Simulation.SlowTickPeriod,
	}
	if rec, ok := restored[id]; ok {
		snap := rec.Snapshot
		opts.Snapshot = &snap
		s.log.Infof("restoring %s from snapshot at %.2fs", id, rec.SimTime)
	}
	b, err := device.NewBattery(id, bc.Battery, s.elec, s.therm, opts)
	if err != nil {
		return nil, err
	}
	ground := s.elec.Ground()
	if err := s.elec.RegisterResistor(b.Negative(), ground, fixed(groundResistance)); err != nil {
		return nil, fmt.Errorf("battery %s ground: %w", id, err)
	}
	if r := bc.Load.Resistance; r > 0 {
		if err := s.elec.RegisterResistor(b.Positive(), ground, fixed(r)); err != nil {
			return nil, fmt.Errorf("battery %s load: %w", id, err)
		}
	}
	if v := bc.Load.ChargerVoltage; v > 0 {
		out := s.elec.NewTerminal(id + ".charger")
		if _, err := s.elec.RegisterVoltageSource(out, ground, fixed(v)); err != nil {
			return nil, fmt.Errorf("battery %s charger: %w", id, err)
		}
		if err := s.elec.RegisterResistor(out, b.Positive(), fixed(bc.Load.ChargerResistance)); err != nil {
			return nil, fmt.Errorf("battery %s charger: %w", id, err)
		}
	}
	s.coord.Add(b)
	s.batteries = append(s.batteries, b)
	return b, nil
}

func fixed(v float64) func() float64 { return func() float64 { return v } }

// diagnosticsFor tags the diagnostics of one device and hands them to the
// bus without blocking the tick.
func (s *Service) diagnosticsFor(id string) battery.DiagnosticRecorder {
	return battery.DiagnosticFunc(func(d battery.Diagnostic) {
		ev := coremetrics.DiagnosticEvent{
			DeviceID: id,
			RunID:    s.cfg.Simulation.RunID,
			Kind:     string(d.Kind),
			Source:   d.Source,
			Detail:   d.Detail,
			Value:    d.Value,
			Time:     time.Now(),
		}
		if s.sched != nil {
			ev.SimTime = s.sched.Time()
		}
		// NaN and Inf have no JSON encoding.
		if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
			ev.Detail = fmt.Sprintf("%s (%v)", d.Detail, d.Value)
			ev.Value = 0
		}
		s.diags.Publish(ev)
	})
}

func (s *Service) onFailure(id string) {
	s.failures = append(s.failures, id)
	s.log.Errorf("battery %s destroyed by thermal watchdog", id)
	if s.cfg.Simulation.StopOnFailure && s.stop != nil {
		s.stop()
	}
}

func (s *Service) step(tk scheduler.Tick) error {
	stats, err := s.coord.Step(tk.Dt)
	if err != nil {
		return err
	}
	if stats.Forced {
		s.log.Warnf("tick %d: limiters forced after %d solves", tk.Index, stats.Solves)
	}
	return nil
}

func (s *Service) publish(tk scheduler.Tick) error {
	now := time.Now()
	var errs []error
	for _, b := range s.batteries {
		ev := coremetrics.BatteryStateEvent{
			DeviceID:    b.ID(),
			RunID:       s.cfg.Simulation.RunID,
			Voltage:     b.TerminalVoltage(),
			Current:     b.DischargeCurrent(),
			Power:       b.Power(),
			Charge:      b.Charge(),
			Wear:        b.Wear(),
			Energy:      b.Energy(),
			Temperature: b.Temperature(),
			Limiting:    b.Limiting(),
			Failed:      b.Failed(),
			SimTime:     tk.Time,
			Time:        now,
		}
		if err := s.sink.RecordBatteryState(ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.ID(), err))
		}
		s.log.Debugw(b.Readout(), map[string]any{"device_id": b.ID(), "sim_time": tk.Time})
	}
	return errors.Join(errs...)
}

// Batteries returns the devices in configuration order.
func (s *Service) Batteries() []*device.Battery { return s.batteries }

// Failures returns the IDs of the devices destroyed so far.
func (s *Service) Failures() []string { return s.failures }

// Time returns the simulated time in seconds.
func (s *Service) Time() float64 { return s.sched.Time() }

// Run executes the configured duration, or until ctx is canceled when the
// duration is zero. Cancellation and a stop on failure are not errors.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.stop = cancel

	sim := s.cfg.Simulation
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if sim.Realtime {
		ticker := time.NewTicker(time.Duration(sim.FastTickSeconds * float64(time.Second)))
		defer ticker.Stop()
		if err := s.sched.Add(scheduler.NewTask("pace", 1, func(scheduler.Tick) error {
			select {
			case <-ticker.C:
			case <-ctx.Done():
			}
			return nil
		})); err != nil {
			return err
		}
	}

	s.log.Infof("running %s for %d ticks of %.3fs", sim.RunID, sim.Ticks(), sim.FastTickSeconds)
	err := s.sched.Run(ctx, sim.Ticks())
	if len(s.failures) > 0 && sim.StopOnFailure {
		s.log.Warnf("stopped after failure of %v at %.2fs", s.failures, s.sched.Time())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.log.Infof("simulation stopped at %.2fs", s.sched.Time())
	return nil
}

// SaveSnapshots appends the current state of every battery to the store.
func (s *Service) SaveSnapshots(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	now := time.Now()
	var errs []error
	for _, b := range s.batteries {
		rec := snapshot.Record{
			DeviceID: b.ID(),
			RunID:    s.cfg.Simulation.RunID,
			SimTime:  s.sched.Time(),
			Time:     now,
			Snapshot: b.Capture(),
		}
		if err := s.store.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close persists the batteries, drains pending diagnostics and releases the
// sinks and the store.
func (s *Service) Close() error {
	var errs []error
	if s.sched != nil {
		if err := s.SaveSnapshots(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("save snapshots: %w", err))
		}
	}
	errs = append(errs, s.shutdown())
	return errors.Join(errs...)
}

func (s *Service) shutdown() error {
	var errs []error
	s.diags.Close()
	if s.collectorDone != nil {
		<-s.collectorDone
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("snapshot store: %w", err))
		}
	}
	if c, ok := s.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sinks: %w", err))
		}
	}
	return errors.Join(errs...)
}

package device_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/core/device"
	"github.com/kilianp07/batsim/core/network"
	"github.com/kilianp07/batsim/core/scheduler"
	"github.com/kilianp07/batsim/infra/mna"
	"github.com/kilianp07/batsim/infra/thermal"
)

func constant(v float64) func() float64 { return func() float64 { return v } }

type rig struct {
	elec  *mna.Network
	therm *thermal.Network
	bat   *device.Battery
	sched *scheduler.Scheduler
	diags *battery.DiagnosticLog
}

func testConfig() battery.Config {
	cfg := battery.DefaultConfig()
	cfg.MaxCurrent = 20
	cfg.RatedCapacity = 100
	return cfg
}

func newRig(t *testing.T, cfg battery.Config, opts device.Options) *rig {
	t.Helper()
	r := &rig{
		elec:  mna.New(),
		therm: thermal.New(25, nil),
		diags: &battery.DiagnosticLog{},
	}
	opts.Diagnostics = r.diags
	opts.SlowTickPeriod = 20
	bat, err := device.NewBattery("bat", cfg, r.elec, r.therm, opts)
	require.NoError(t, err)
	r.bat = bat
	require.NoError(t, r.elec.RegisterResistor(bat.Negative(), r.elec.Ground(), constant(1e-3)))

	coord := network.NewCoordinator(r.elec, r.therm, network.DefaultMaxResolves, nil)
	coord.Add(bat)
	sched, err := scheduler.New(scheduler.Config{FastTickSeconds: 0.05, SlowTickPeriod: 20}, nil)
	require.NoError(t, err)
	require.NoError(t, sched.Add(scheduler.NewTask("network", 1, func(tk scheduler.Tick) error {
		_, err := coord.Step(tk.Dt)
		return err
	})))
	require.NoError(t, sched.Add(bat.SlowTasks()...))
	r.sched = sched
	return r
}

func (r *rig) run(t *testing.T, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		require.NoError(t, r.sched.Step())
	}
}

func TestBatteryDischargesIntoLoad(t *testing.T) {
	r := newRig(t, testConfig(), device.Options{})
	require.NoError(t, r.elec.RegisterResistor(r.bat.Positive(), r.elec.Ground(), constant(4.42)))

	r.run(t, 20)

	want := 44.2 / (4.42 + 0.05 + 1e-3)
	assert.InDelta(t, want, r.bat.DischargeCurrent(), 1e-3)
	assert.InDelta(t, want*4.42, r.bat.Positive().Voltage(), 1e-2)
	assert.InDelta(t, 0.5-want/100, r.bat.Charge(), 1e-4)
	assert.Greater(t, r.bat.Temperature(), 25.0)
	assert.Less(t, r.bat.Wear(), 1.0)
	assert.Positive(t, r.bat.Power())
	assert.False(t, r.bat.Limiting())
	assert.Zero(t, r.diags.Count(battery.DiagLimit))
}

func TestBatteryChargesFromSource(t *testing.T) {
	r := newRig(t, testConfig(), device.Options{})
	charger := r.elec.NewTerminal("charger")
	_, err := r.elec.RegisterVoltageSource(charger, r.elec.Ground(), constant(50))
	require.NoError(t, err)
	require.NoError(t, r.elec.RegisterResistor(charger, r.bat.Positive(), constant(0.5)))

	r.run(t, 20)

	want := -(50 - 44.2) / (0.5 + 0.05 + 1e-3)
	assert.InDelta(t, want, r.bat.DischargeCurrent(), 1e-3)
	assert.InDelta(t, 0.5-want/100, r.bat.Charge(), 1e-4)
	assert.Negative(t, r.bat.Power())
}

func TestBatteryLimitsOverCurrent(t *testing.T) {
	r := newRig(t, testConfig(), device.Options{})
	require.NoError(t, r.elec.RegisterResistor(r.bat.Positive(), r.elec.Ground(), constant(1)))

	r.run(t, 1)
	assert.True(t, r.bat.Limiting())
	assert.LessOrEqual(t, math.Abs(r.bat.DischargeCurrent()), 20.0)
	assert.Positive(t, r.diags.Count(battery.DiagLimit))

	limits := r.diags.Count(battery.DiagLimit)
	r.run(t, 5)
	assert.LessOrEqual(t, math.Abs(r.bat.DischargeCurrent()), 20.0)
	assert.Greater(t, r.bat.DischargeCurrent(), 19.0)
	assert.Equal(t, limits, r.diags.Count(battery.DiagLimit))
}

func TestBatteryWatchdogDestroysDevice(t *testing.T) {
	failures := 0
	r := newRig(t, testConfig(), device.Options{OnFailure: func() { failures++ }})
	require.NoError(t, r.elec.RegisterResistor(r.bat.Positive(), r.elec.Ground(), constant(4.42)))
	require.NoError(t, r.therm.SetTemperature(r.bat.ThermalNodes()[0], 90))

	r.run(t, 20)
	require.True(t, r.bat.Failed())
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, r.diags.Count(battery.DiagWatchdog))
	assert.Zero(t, r.bat.TerminalVoltage())

	charge, wear := r.bat.Charge(), r.bat.Wear()
	r.run(t, 40)
	assert.InDelta(t, 0, r.bat.DischargeCurrent(), 1e-6)
	assert.Equal(t, charge, r.bat.Charge())
	assert.Equal(t, wear, r.bat.Wear())
	assert.Equal(t, 1, failures)
}

func TestBatteryRestoresSnapshot(t *testing.T) {
	snap := battery.Snapshot{Charge: 0.9, Wear: 0.7}
	r := newRig(t, testConfig(), device.Options{Snapshot: &snap})
	assert.Equal(t, snap, r.bat.Capture())
	assert.InDelta(t, 90, r.bat.Energy(), 1e-9)

	r.bat.Restore(battery.Snapshot{Charge: math.NaN(), Wear: 4})
	assert.Equal(t, battery.Snapshot{Charge: 0.5, Wear: 1}, r.bat.Capture())
	assert.Equal(t, 2, r.diags.Count(battery.DiagClamp))
}

func TestBatteryReportsDepletionAfterRestore(t *testing.T) {
	cfg := testConfig()
	cfg.RatedCapacity = 1e9
	cfg.DecayAtCeiling = 4
	snap := battery.Snapshot{Charge: 0.5, Wear: 0}
	r := newRig(t, cfg, device.Options{Snapshot: &snap})
	require.NoError(t, r.elec.RegisterResistor(r.bat.Positive(), r.elec.Ground(), constant(4.42)))

	r.bat.Restore(battery.Snapshot{Charge: 0.5, Wear: 1})
	r.run(t, 40)

	assert.Equal(t, 0.0, r.bat.Wear())
	assert.Equal(t, 1, r.diags.Count(battery.DiagDepleted))
}

func TestBatteryRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCurrent = -1
	_, err := device.NewBattery("bad", cfg, mna.New(), thermal.New(25, nil), device.Options{})
	require.True(t, errors.Is(err, battery.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "bad")
}

func TestBatteryTopology(t *testing.T) {
	r := newRig(t, testConfig(), device.Options{})
	var _ device.HasElectricalTerminals = r.bat
	terms := r.bat.ElectricalTerminals()
	require.Len(t, terms, 2)
	assert.Equal(t, "bat.positive", terms[0].Name())
	assert.Equal(t, "bat.negative", terms[1].Name())
	assert.Equal(t, "bat.thermal", r.bat.ThermalNodes()[0].Name())
	assert.Len(t, r.bat.SlowTasks(), 2)
	assert.True(t, strings.HasPrefix(r.bat.Readout(), "Ubat: 44.20V"))
}

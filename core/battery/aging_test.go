package battery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agingConfig() Config {
	cfg := DefaultConfig()
	cfg.RatedCapacity = 100
	cfg.MaxCurrent = 20
	cfg.InitialCharge = 1
	return cfg
}

func newAging(t *testing.T, cfg Config) (*Aging, *State, *DiagnosticLog) {
	t.Helper()
	state := NewState(cfg)
	log := &DiagnosticLog{}
	dyn, err := NewDynamics(cfg, state, WithDiagnostics(log))
	require.NoError(t, err)
	a, err := NewAging(cfg, state, dyn, WithDiagnostics(log))
	require.NoError(t, err)
	return a, state, log
}

func TestAgingDischarge(t *testing.T) {
	a, state, _ := newAging(t, agingConfig())
	a.Integrate(5, 10, 25)
	assert.InDelta(t, 0.5, state.Charge(), 1e-12)
}

func TestAgingCharging(t *testing.T) {
	cfg := agingConfig()
	cfg.InitialCharge = 0.2
	a, state, _ := newAging(t, cfg)
	a.Integrate(5, -10, 25)
	assert.InDelta(t, 0.7, state.Charge(), 1e-12)
}

func TestAgingClampsCharge(t *testing.T) {
	a, state, log := newAging(t, agingConfig())
	a.Integrate(20, 10, 25)
	assert.Equal(t, 0.0, state.Charge())
	assert.Equal(t, 1, log.Count(DiagClamp))

	a.Integrate(30, -10, 25)
	assert.Equal(t, 1.0, state.Charge())
	assert.Equal(t, 2, log.Count(DiagClamp))
}

func TestAgingZeroStressKeepsWear(t *testing.T) {
	a, state, _ := newAging(t, agingConfig())
	for i := 0; i < 100; i++ {
		a.Integrate(1, 0, 20)
	}
	assert.Equal(t, 1.0, state.Wear())
}

func TestAgingWearNeverIncreases(t *testing.T) {
	cfg := agingConfig()
	cfg.DecayAtCeiling = 1e-3
	a, state, _ := newAging(t, cfg)
	prev := state.Wear()
	for i := 0; i < 50; i++ {
		a.Integrate(1, float64(i%7)-3, 20+float64(i))
		require.LessOrEqual(t, state.Wear(), prev)
		prev = state.Wear()
	}
	assert.Less(t, state.Wear(), 1.0)
}

func TestAgingStressCapped(t *testing.T) {
	cfg := agingConfig()
	a, _, _ := newAging(t, cfg)
	assert.Equal(t, cfg.StressCeiling, a.Stress(1000, 1000))
	assert.InDelta(t, 0.5, a.Stress(10, 25), 1e-12)
	assert.InDelta(t, 0.5+10.0/40, a.Stress(-10, 35), 1e-12)
}

func TestAgingDecayAtCeiling(t *testing.T) {
	cfg := agingConfig()
	cfg.DecayAtCeiling = 0.01
	cfg.RatedCapacity = 1e9
	a, state, _ := newAging(t, cfg)
	a.Integrate(2, 20, 1000)
	assert.InDelta(t, 0.98, state.Wear(), 1e-12)
}

func TestAgingDepletedReportedOnce(t *testing.T) {
	cfg := agingConfig()
	cfg.DecayAtCeiling = 1
	cfg.RatedCapacity = 1e9
	a, state, log := newAging(t, cfg)
	for i := 0; i < 5; i++ {
		a.Integrate(1, 20, 1000)
	}
	assert.Equal(t, 0.0, state.Wear())
	assert.Equal(t, 1, log.Count(DiagDepleted))
}

func TestAgingAlternatingCurrentWears(t *testing.T) {
	cfg := agingConfig()
	cfg.DecayAtCeiling = 1e-3
	cfg.InitialCharge = 0.5
	state := NewState(cfg)
	dyn, err := NewDynamics(cfg, state)
	require.NoError(t, err)
	a, err := NewAging(cfg, state, dyn)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		dyn.ReportCurrent(10 * float64(1-2*(i%2)))
		dyn.EndTick(0.1)
	}
	u := dyn.DrainThroughput()
	a.IntegrateUsage(2, u, cfg.NominalTemperature)

	assert.InDelta(t, 0.5, state.Charge(), 1e-12)
	want := 1 - cfg.DecayAtCeiling*a.Stress(10, cfg.NominalTemperature)/cfg.StressCeiling*2
	assert.InDelta(t, want, state.Wear(), 1e-12)
	assert.Less(t, state.Wear(), 1.0)
}

func TestAgingResyncAfterRestore(t *testing.T) {
	cfg := agingConfig()
	cfg.DecayAtCeiling = 1
	cfg.RatedCapacity = 1e9
	a, state, log := newAging(t, cfg)
	a.Integrate(10, 20, 1000)
	require.Equal(t, 1, log.Count(DiagDepleted))

	a.dyn.Restore(Snapshot{Charge: 1, Wear: 1})
	a.Resync()
	a.Integrate(10, 20, 1000)
	assert.Equal(t, 0.0, state.Wear())
	assert.Equal(t, 2, log.Count(DiagDepleted))
}

func TestAgingRefreshesResistance(t *testing.T) {
	cfg := agingConfig()
	cfg.DecayAtCeiling = 1
	cfg.RatedCapacity = 1e9
	state := NewState(cfg)
	dyn, err := NewDynamics(cfg, state)
	require.NoError(t, err)
	a, err := NewAging(cfg, state, dyn)
	require.NoError(t, err)
	a.Integrate(10, 20, 1000)
	assert.InDelta(t, cfg.InternalResistance*(1+cfg.ResistanceWearFactor), dyn.InternalResistance(), 1e-12)
}

func TestAgingNonFiniteInputs(t *testing.T) {
	a, state, log := newAging(t, agingConfig())
	a.Integrate(1, math.NaN(), math.Inf(1))
	assert.Equal(t, 1.0, state.Charge())
	assert.Equal(t, 1.0, state.Wear())
	assert.Equal(t, 2, log.Count(DiagDivergence))

	a.Integrate(math.NaN(), 10, 25)
	a.Integrate(-1, 10, 25)
	assert.Equal(t, 1.0, state.Charge())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/core/network"
	"github.com/kilianp07/batsim/core/scheduler"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `simulation:
  fast_tick_seconds: 0.1
  slow_tick_period: 10
  duration_seconds: 60
  stop_on_failure: true
  ambient_temperature: 0
batteries:
  - id: pack-a
    max_voltage: 12.6
    min_voltage: 9
    rated_capacity: 7200
    max_current: 20
    voltage_curve: [0, 0.8, 1]
    load:
      resistance: 2
  - id: pack-b
    initial_charge: 0.2
    load:
      charger_voltage: 54
snapshot:
  path: /tmp/snap.jsonl
metrics:
  sinks:
    - type: nop
  prometheus_addr: ":9100"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: lab
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"fast_tick_seconds", cfg.Simulation.FastTickSeconds, 0.1},
		{"slow_tick_period", cfg.Simulation.SlowTickPeriod, 10},
		{"publish_period", cfg.Simulation.Publish(), 10},
		{"max_resolves", cfg.Simulation.Resolves(), 6},
		{"ambient_temperature", cfg.Simulation.AmbientTemperature, 0.0},
		{"stop_on_failure", cfg.Simulation.StopOnFailure, true},
		{"batteries", len(cfg.Batteries), 2},
		{"pack-a max_voltage", cfg.Batteries[0].Battery.MaxVoltage, 12.6},
		{"pack-a max_current", cfg.Batteries[0].Battery.MaxCurrent, 20.0},
		{"pack-a load", cfg.Batteries[0].Load.Resistance, 2.0},
		{"pack-a curve points", len(cfg.Batteries[0].Battery.VoltageCurve), 3},
		{"pack-b id", cfg.Batteries[1].ID, "pack-b"},
		{"pack-b initial_charge", cfg.Batteries[1].Battery.InitialCharge, 0.2},
		{"pack-b default max_current", cfg.Batteries[1].Battery.MaxCurrent, 50.0},
		{"pack-b charger resistance", cfg.Batteries[1].Load.ChargerResistance, 0.1},
		{"snapshot", cfg.Snapshot.Path, "/tmp/snap.jsonl"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"mqtt prefix", cfg.MQTT.TopicPrefix, "lab"},
		{"logging", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	assert.NotEmpty(t, cfg.Simulation.RunID)
	assert.NotEmpty(t, cfg.MQTT.ClientID)
	assert.Equal(t, battery.DefaultVoltageCurve, cfg.Batteries[1].Battery.VoltageCurve)
	assert.Equal(t, uint64(600), cfg.Simulation.Ticks())
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"batteries":[{"id":"b1","max_current":35}]}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Batteries, 1)
	assert.Equal(t, 35.0, cfg.Batteries[0].Battery.MaxCurrent)
	assert.Equal(t, 0.05, cfg.Simulation.FastTickSeconds)
	assert.Equal(t, 25.0, cfg.Simulation.AmbientTemperature)
	assert.Equal(t, uint64(0), cfg.Simulation.Ticks())
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "simulation:\n  realtime: false\n")
	t.Setenv("BATSIM_SIMULATION__REALTIME", "true")
	t.Setenv("BATSIM_LOGGING__LEVEL", "warn")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Simulation.Realtime)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Batteries)
	assert.Equal(t, 20, cfg.Simulation.SlowTickPeriod)
}

func TestLoadKeepsZeroResolveBudget(t *testing.T) {
	path := writeConfig(t, "config.yaml", "simulation:\n  max_resolves: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Simulation.MaxResolves)
	assert.Equal(t, 0, cfg.Simulation.Resolves())

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Nil(t, cfg.Simulation.MaxResolves)
	assert.Equal(t, network.DefaultMaxResolves, cfg.Simulation.Resolves())
}

func TestPublishFollowsCadence(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Simulation.Publish())

	cfg.Simulation.Config = scheduler.Config{FastTickSeconds: 0.1, SlowTickPeriod: 5}
	assert.Equal(t, 5, cfg.Simulation.Publish())

	cfg.Simulation.PublishPeriod = 3
	assert.Equal(t, 3, cfg.Simulation.Publish())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unsupported format": "",
		"max below min": `batteries:
  - id: b1
    min_voltage: 50
    max_voltage: 10
`,
		"duplicate ids": `batteries:
  - id: b1
  - id: b1
`,
		"negative load": `batteries:
  - id: b1
    load:
      resistance: -1
`,
		"bad level":         "logging:\n  level: loud\n",
		"bad cadence":       "simulation:\n  slow_tick_period: -2\n",
		"negative resolves": "simulation:\n  max_resolves: -1\n",
		"negative publish":  "simulation:\n  publish_period: -1\n",
	}
	for name, data := range cases {
		file := "config.yaml"
		if name == "unsupported format" {
			file = "config.toml"
		}
		path := writeConfig(t, file, data)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadInvalidBatteryWrapsConfigError(t *testing.T) {
	path := writeConfig(t, "config.yaml", "batteries:\n  - id: b1\n    rated_capacity: 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, battery.ErrInvalidConfig)
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/infra/snapshot"
)

func TestWriteCurve(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCurve(&buf, "pack", battery.DefaultConfig(), 2))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "pack")
	assert.Contains(t, lines[0], "life 100%")
	assert.Contains(t, lines[2], "44.20V")
	assert.Contains(t, lines[3], "52.00V")
	assert.Contains(t, lines[3], "46.80V")
}

func TestWriteCurveRejectsBadCurve(t *testing.T) {
	cfg := battery.DefaultConfig()
	cfg.VoltageCurve = []float64{1, 0}
	require.Error(t, writeCurve(&bytes.Buffer{}, "bad", cfg, 2))
}

func TestWriteSnapshotsSorted(t *testing.T) {
	var buf bytes.Buffer
	records := map[string]snapshot.Record{
		"zeta":  {DeviceID: "zeta", RunID: "r", Snapshot: battery.Snapshot{Charge: 0.5, Wear: 1}, Time: time.Unix(0, 0).UTC()},
		"alpha": {DeviceID: "alpha", RunID: "r", Snapshot: battery.Snapshot{Charge: 0.25, Wear: 0.9}, Time: time.Unix(0, 0).UTC()},
	}
	require.NoError(t, writeSnapshots(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "alpha"))
	assert.Contains(t, lines[1], "25.0%")
	assert.Contains(t, lines[1], "90.0%")
	assert.True(t, strings.HasPrefix(lines[2], "zeta"))
}

func TestCurveCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batteries:\n  - id: pack\n    max_voltage: 12\n"), 0o644))
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"curve", "-c", path, "--steps", "4"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "pack")
	assert.Contains(t, buf.String(), "12.00V")
}

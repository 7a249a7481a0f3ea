//go:build integration

package app

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/batsim/config"
	"github.com/kilianp07/batsim/test/util"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServicePublishesTelemetry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	defer cleanup()

	cfg := testConfig(t, config.LoadConfig{Resistance: 4.42})
	cfg.Simulation.DurationSeconds = 0
	cfg.Simulation.Realtime = true
	cfg.Metrics.PrometheusAddr = freeAddr(t)
	cfg.MQTT.Broker = broker
	cfg.MQTT.SetDefaults()

	states, unsubscribe, err := util.SubscribeStates(broker, fmt.Sprintf("%s/b1/state", cfg.MQTT.TopicPrefix), 4)
	require.NoError(t, err)
	defer unsubscribe()

	svc, err := New(cfg)
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 3*util.MetricTimeout)
	defer waitCancel()
	metricsURL := "http://" + cfg.Metrics.PrometheusAddr + "/metrics"
	require.NoError(t, util.WaitForBatteryMetric(waitCtx, metricsURL, "battery_voltage_volts", "b1"))

	select {
	case ev := <-states:
		require.Equal(t, "b1", ev.DeviceID)
		require.Positive(t, ev.Current)
	case <-waitCtx.Done():
		t.Fatal("no state published over mqtt")
	}

	stop()
	require.NoError(t, <-done)
	require.NoError(t, svc.Close())
}

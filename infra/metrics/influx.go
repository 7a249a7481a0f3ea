package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/batsim/core/metrics"
	"github.com/kilianp07/batsim/infra/logger"
)

// InfluxSink writes battery telemetry to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordBatteryState writes a battery_state point.
func (s *InfluxSink) RecordBatteryState(ev coremetrics.BatteryStateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("battery_state").
		AddTag("device_id", ev.DeviceID)
	if ev.RunID != "" {
		p = p.AddTag("run_id", ev.RunID)
	}
	p = p.AddField("voltage", round3(ev.Voltage)).
		AddField("current", round3(ev.Current)).
		AddField("power", round3(ev.Power)).
		AddField("charge", round6(ev.Charge)).
		AddField("wear", round6(ev.Wear)).
		AddField("energy", round3(ev.Energy)).
		AddField("temperature", round3(ev.Temperature)).
		AddField("limiting", ev.Limiting).
		AddField("failed", ev.Failed).
		AddField("sim_time", round3(ev.SimTime)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDiagnostic writes a battery_diagnostic point.
func (s *InfluxSink) RecordDiagnostic(ev coremetrics.DiagnosticEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("battery_diagnostic").
		AddTag("device_id", ev.DeviceID).
		AddTag("kind", ev.Kind).
		AddTag("source", ev.Source)
	if ev.RunID != "" {
		p = p.AddTag("run_id", ev.RunID)
	}
	p = p.AddField("detail", ev.Detail).
		AddField("sim_time", round3(ev.SimTime)).
		SetTime(ev.Time)
	if !math.IsNaN(ev.Value) && !math.IsInf(ev.Value, 0) {
		p = p.AddField("value", round3(ev.Value))
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

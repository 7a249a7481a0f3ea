package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremetrics "github.com/kilianp07/batsim/core/metrics"
	"github.com/kilianp07/batsim/infra/logger"
)

// Sink publishes battery state to <prefix>/<device>/state and diagnostics to
// <prefix>/<device>/event as JSON.
type Sink struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

var (
	_ coremetrics.MetricsSink        = (*Sink)(nil)
	_ coremetrics.DiagnosticRecorder = (*Sink)(nil)
)

// NewSink connects to the broker.
func NewSink(cfg Config) (*Sink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_sink")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Sink{
		cli:        c,
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}, nil
}

// StateTopic returns the topic carrying state snapshots of a device.
func (s *Sink) StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", s.prefix, deviceID)
}

// EventTopic returns the topic carrying diagnostics of a device.
func (s *Sink) EventTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/event", s.prefix, deviceID)
}

// RecordBatteryState publishes the snapshot, retained when configured.
func (s *Sink) RecordBatteryState(ev coremetrics.BatteryStateEvent) error {
	return s.publish(s.StateTopic(ev.DeviceID), "state", s.retain, ev)
}

// RecordDiagnostic publishes the diagnostic. Diagnostics are never retained.
func (s *Sink) RecordDiagnostic(ev coremetrics.DiagnosticEvent) error {
	return s.publish(s.EventTopic(ev.DeviceID), "event", false, ev)
}

func (s *Sink) publish(topic, kind string, retain bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	qos := s.qos[kind]
	var publishErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		token := s.cli.Publish(topic, qos, retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			s.log.Debugf("published %s", topic)
			return nil
		}
		s.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < s.maxRetries {
			time.Sleep(s.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Close gracefully closes the MQTT connection.
func (s *Sink) Close() error {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
	return nil
}

package metrics

// Package metrics defines the telemetry events emitted by the simulation and
// the sink interfaces recording them. Sinks like PromSink, InfluxSink and the
// MQTT sink live in infra and register themselves by type name; the factory
// helpers return a MultiSink automatically when multiple sinks are configured.

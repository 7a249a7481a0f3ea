// Package infra contains the technical adapters of the simulator: the
// reference network solvers, telemetry sinks, the MQTT transport and the
// snapshot store. These packages depend only on the interfaces defined in
// the core packages.
package infra

// Package device assembles simulation devices from core components and wires
// them into the shared networks. Devices are composed from small capability
// interfaces rather than a base type.
package device

import (
	"github.com/kilianp07/batsim/core/battery"
	"github.com/kilianp07/batsim/core/network"
	"github.com/kilianp07/batsim/core/scheduler"
)

// HasElectricalTerminals is implemented by devices with electrical terminals.
type HasElectricalTerminals interface {
	ElectricalTerminals() []network.Terminal
}

// HasThermalNodes is implemented by devices owning thermal nodes.
type HasThermalNodes interface {
	ThermalNodes() []network.ThermalNode
}

// HasSlowTickBehavior is implemented by devices with slow-cadence tasks.
type HasSlowTickBehavior interface {
	SlowTasks() []scheduler.Task
}

// Persistable is implemented by devices whose state survives removal.
type Persistable interface {
	Capture() battery.Snapshot
	Restore(snap battery.Snapshot)
}

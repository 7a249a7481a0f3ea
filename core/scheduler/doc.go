// Package scheduler dispatches simulation tasks on an explicit cadence.
// Every task declares its period in fast ticks; the scheduler runs the tasks
// due on a tick in the order they were added.
package scheduler

// Package network defines the contracts between simulated devices and the
// shared electrical and thermal solvers, and the two-phase step that hands
// the networks back and forth between them.
//
// A fast tick runs in strict order: every device prepares (PreSolve), the
// electrical network is solved, every device reads its own solver outputs
// (PostSolve). Devices that need a different series resistance ask for
// another solve; the Coordinator repeats until none does or the resolve
// budget is spent. The thermal network then advances with the heat produced
// during the tick.
package network

// Package harness runs scan scenarios end to end.
//
// A scenario is a YAML file holding a replay script (simulated cameras and
// the frames they produce) and a list of steps driven against a
// scanner.Manager: enumerate, select, start, wait, switch, stop, close.
// Results pass through an in-memory attendance store so duplicate tokens
// show up in the trace.
//
// Everything that could vary between runs is fixed: payload nonces,
// issue and scan times, session IDs and result sequence numbers. The
// trace is therefore stable and is compared against golden files:
//
//	go test ./internal/harness -update
//
// regenerates them.
//
// Steps that start scanning should be followed by a wait step before the
// next camera operation. wait blocks until the replay streams have emitted
// every frame and the manager has handled them. Without it frames still in
// flight when the camera is released are dropped, and the counts vary
// between runs.
package harness

// Package replay provides a scripted scanner.Engine.
//
// A Script lists cameras and a sequence of frame outcomes (decoded text,
// frame errors, or references encoded at load time). Every attached
// stream replays the same frames from its own goroutine, which makes the
// engine suitable for tests, demos and the scenario harness.
package replay

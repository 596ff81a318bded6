// Package simlog wires the simulator's protocol and kernel packages to
// structured logging: github.com/joeycumines/logiface as the fluent
// logging facade, and github.com/joeycumines/stumpy as the concrete
// (JSON) encoder.
//
// Nothing in this module logs by default. Device and Simulator hold a
// *Logger obtained from Discard unless a caller opts in via
// device.WithLogger / sim.Builder.WithLogger.
package simlog

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type threaded through this module.
type Logger = logiface.Logger[*stumpy.Event]

// Level is re-exported so callers configuring a Logger don't need to
// import logiface directly.
type Level = logiface.Level

const (
	LevelDisabled = logiface.LevelDisabled
	LevelError    = logiface.LevelError
	LevelWarning  = logiface.LevelWarning
	LevelInfo     = logiface.LevelInformational
	LevelDebug    = logiface.LevelDebug
	LevelTrace    = logiface.LevelTrace
)

// New builds a Logger that writes newline-delimited JSON events to w at or
// above level.
func New(w io.Writer, level Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// Discard returns a Logger with logging disabled. It still satisfies the
// full Logger API (so call sites never need a nil check), it simply never
// writes or allocates an event.
func Discard() *Logger {
	return New(io.Discard, LevelDisabled)
}

// Package gpio talks to the serial-attached line controller that owns the
// electrical layer: a small interface board that drives output lines on
// command and streams edge events for watched input lines back over the
// serial link, one event per text line.
package gpio

import (
	"context"
	"time"
)

// Level is a logic level on a line.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// Mode is the direction of a line.
type Mode uint8

const (
	Input Mode = iota
	Output
)

// Edge selects which transitions of a watched line are reported.
type Edge uint8

const (
	RisingEdge Edge = iota
	FallingEdge
	EitherEdge
)

// LineEvent is one reported transition of a watched line.
//
// Tick is the board's 32-bit microsecond monotonic counter. It wraps from
// 4294967295 to 0 roughly every 72 minutes, so elapsed time between two
// events must always be computed with TickDiff, never with a plain signed
// subtraction.
type LineEvent struct {
	Line  uint8
	Level Level
	Tick  uint32
}

// TickDiff returns the number of microseconds from start to end on the
// board's wrapping 32-bit tick counter. Unsigned subtraction gives the
// correct modular difference across the rollover boundary.
func TickDiff(start, end uint32) uint32 {
	return end - start
}

// LineController is the control surface the rest of the daemon uses to drive
// and observe lines. It is implemented by LineMux for real and mock ports.
type LineController interface {
	// Subscribe creates a new channel receiving line events from the
	// controller. The returned ID identifies the channel for Unsubscribe.
	Subscribe() (string, chan LineEvent)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)

	// WriteLine drives an output line to the given level.
	WriteLine(line uint8, level Level) error
	// SetMode configures the direction of a line.
	SetMode(line uint8, mode Mode) error
	// SetNoiseFilter asks the board to suppress glitches on a line: a level
	// change is reported only after the line has been steady for the given
	// duration, and further changes are ignored for the active duration.
	SetNoiseFilter(line uint8, steady, active time.Duration) error
	// WatchLine asks the board to report the selected edges of a line.
	WatchLine(line uint8, edge Edge) error

	// Monitor reads events from the board and fans them out to subscribers
	// until the context is cancelled or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the underlying port.
	Close() error
}

package sensor

import (
	"sync/atomic"

	"github.com/banshee-data/ph.report/internal/gpio"
)

// Colour channel indices into a Reading triplet. The order matches the
// reference table CSV columns.
const (
	Red   = 0
	Green = 1
	Blue  = 2
)

// Reading is one committed RGB frequency triplet. It is either all-zero (no
// signal detected) or every channel was measured within the same rotation.
type Reading struct {
	Hertz [3]float64 `json:"hertz"`
	Tally [3]int64   `json:"tally"`
}

// Empty reports whether the reading carries no usable sample.
func (r Reading) Empty() bool {
	return r.Hertz[Red] == 0 && r.Hertz[Green] == 0 && r.Hertz[Blue] == 0
}

// counter is the frequency counter state machine. It converts the edge
// stream from the OUT line and the two filter select lines into per-colour
// Hertz values.
//
// All fields except committed are owned exclusively by the edge-feed
// goroutine; the sequencer only ever sees the committed snapshot.
type counter struct {
	out, s2, s3 uint8

	cycle     int64
	startTick uint32
	lastTick  uint32
	working   Reading

	committed atomic.Pointer[Reading]
}

func newCounter(out, s2, s3 uint8) *counter {
	c := &counter{out: out, s2: s2, s3: s3}
	c.committed.Store(&Reading{})
	return c
}

// Committed returns the latest full-rotation snapshot.
func (c *counter) Committed() Reading {
	return *c.committed.Load()
}

// handle consumes one edge event. It runs on the edge-feed goroutine and
// must stay non-blocking so tick deltas remain accurate.
//
// The select lines encode four filter states; the rotation order
// Red -> Blue -> Green -> Clear flips exactly one line per transition, so a
// single edge on S2 or S3 identifies both the window that just ended and the
// one that starts:
//
//	S2 low   Clear -> Red    (starts counting, closes nothing)
//	S2 high  Blue  -> Green  closes the Blue window
//	S3 low   Green -> Clear  closes the Green window and commits the triplet
//	S3 high  Red   -> Blue   closes the Red window
func (c *counter) handle(ev gpio.LineEvent) {
	switch ev.Line {
	case c.out:
		// Rising edge of the frequency square wave.
		if c.cycle == 0 {
			c.startTick = ev.Tick
		} else {
			c.lastTick = ev.Tick
		}
		c.cycle++

	case c.s2:
		if ev.Level == gpio.Low { // Clear -> Red
			c.cycle = 0
			return
		}
		c.closeWindow(Blue) // Blue -> Green

	case c.s3:
		if ev.Level == gpio.Low { // Green -> Clear
			c.closeWindow(Green)
			c.commit()
		} else { // Red -> Blue
			c.closeWindow(Red)
		}
	}
}

// closeWindow converts the cycles accumulated in the just-finished colour
// window into Hertz. The first edge only establishes startTick, so N edges
// bound N-1 full cycles. Fewer than two edges means no signal: both hertz
// and tally go to zero, which downstream treats as "lengthen the exposure".
func (c *counter) closeWindow(colour int) {
	if c.cycle > 1 {
		cycles := c.cycle - 1
		elapsed := gpio.TickDiff(c.startTick, c.lastTick)
		if elapsed > 0 {
			c.working.Hertz[colour] = 1e6 * float64(cycles) / float64(elapsed)
			c.working.Tally[colour] = cycles
		} else {
			c.working.Hertz[colour] = 0
			c.working.Tally[colour] = 0
		}
	} else {
		c.working.Hertz[colour] = 0
		c.working.Tally[colour] = 0
	}
	c.cycle = 0
}

// commit publishes the working triplet as a single immutable snapshot. The
// Green window closes last in the rotation, so at commit time all three
// channels were measured within the same rotation.
func (c *counter) commit() {
	r := c.working
	c.committed.Store(&r)
}

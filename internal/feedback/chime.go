// Package feedback drives the human-facing output peripherals: the chime
// line and the audio player that announces readings.
package feedback

import (
	"time"

	"github.com/banshee-data/ph.report/internal/gpio"
	"github.com/banshee-data/ph.report/internal/timeutil"
)

// Chime pulses a single output line to produce audible feedback patterns.
type Chime struct {
	ctl   gpio.LineController
	clock timeutil.Clock
	line  uint8
	guard *gpio.PinGuard
}

// NewChime acquires the chime line as an output and returns the chime.
func NewChime(ctl gpio.LineController, clock timeutil.Clock, line uint8) (*Chime, error) {
	guard, err := gpio.AcquirePin(ctl, line, gpio.Output, gpio.Input)
	if err != nil {
		return nil, err
	}
	return &Chime{ctl: ctl, clock: clock, line: line, guard: guard}, nil
}

// Close releases the chime line back to an input.
func (c *Chime) Close() error {
	return c.guard.Release()
}

// Long sounds a single long chime. Used at startup.
func (c *Chime) Long() error {
	return c.pulse(500 * time.Millisecond)
}

// Short sounds a single short chime. Acknowledges a narrow read request.
func (c *Chime) Short() error {
	return c.pulse(200 * time.Millisecond)
}

// DoubleShort sounds two short chimes. Acknowledges a wide read request.
func (c *Chime) DoubleShort() error {
	if err := c.pulse(200 * time.Millisecond); err != nil {
		return err
	}
	c.clock.Sleep(400 * time.Millisecond)
	return c.pulse(200 * time.Millisecond)
}

func (c *Chime) pulse(d time.Duration) error {
	if err := c.ctl.WriteLine(c.line, gpio.High); err != nil {
		return err
	}
	c.clock.Sleep(d)
	return c.ctl.WriteLine(c.line, gpio.Low)
}

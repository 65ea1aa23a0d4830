// Package buttons converts presses of the two physical read buttons into
// sensor read requests with chime acknowledgement and spoken results.
package buttons

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ph.report/internal/feedback"
	"github.com/banshee-data/ph.report/internal/gpio"
	"github.com/banshee-data/ph.report/internal/monitoring"
	"github.com/banshee-data/ph.report/internal/sensor"
	"github.com/banshee-data/ph.report/internal/timeutil"
)

// Config wires the two button lines and their board-side debounce.
type Config struct {
	NarrowLine uint8
	WideLine   uint8
	Steady     time.Duration
	Active     time.Duration
}

// Buttons latches rising edges of the two request lines on the edge-feed
// goroutine and services them from its own polling loop, so the edge feed
// never blocks on a chime or a reading.
type Buttons struct {
	ctl    gpio.LineController
	clock  timeutil.Clock
	sensor *sensor.Sensor
	chime  *feedback.Chime
	player *feedback.Player
	cfg    Config

	narrow atomic.Bool
	wide   atomic.Bool
}

// New configures the two button lines (inputs, noise-filtered, rising edges
// watched) and returns the dispatcher.
func New(ctl gpio.LineController, clock timeutil.Clock, s *sensor.Sensor, chime *feedback.Chime, player *feedback.Player, cfg Config) (*Buttons, error) {
	b := &Buttons{ctl: ctl, clock: clock, sensor: s, chime: chime, player: player, cfg: cfg}

	for _, line := range []uint8{cfg.NarrowLine, cfg.WideLine} {
		if err := ctl.SetMode(line, gpio.Input); err != nil {
			return nil, err
		}
		if err := ctl.SetNoiseFilter(line, cfg.Steady, cfg.Active); err != nil {
			return nil, err
		}
		if err := ctl.WatchLine(line, gpio.RisingEdge); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Run watches for button presses until the context is cancelled.
func (b *Buttons) Run(ctx context.Context) error {
	id, events := b.ctl.Subscribe()
	defer b.ctl.Unsubscribe(id)

	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				b.handleEvent(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := b.clock.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			b.dispatchPending(ctx)
		}
	}
}

// handleEvent runs on the edge-feed goroutine: latch and return.
func (b *Buttons) handleEvent(ev gpio.LineEvent) {
	if ev.Level != gpio.High {
		return
	}
	switch ev.Line {
	case b.cfg.NarrowLine:
		b.narrow.Store(true)
	case b.cfg.WideLine:
		b.wide.Store(true)
	}
}

// dispatchPending converts at most one latched press into a read request. A
// press of both buttons between polls services the narrow request first; the
// wide press stays latched for the next poll.
func (b *Buttons) dispatchPending(ctx context.Context) {
	if b.narrow.Swap(false) {
		if err := b.chime.Short(); err != nil {
			monitoring.Logf("buttons: chime failed: %v", err)
		}
		b.sensor.RequestRead("narrow", func(res sensor.Result) { b.report(ctx, res) })
		return
	}

	if b.wide.Swap(false) {
		if err := b.chime.DoubleShort(); err != nil {
			monitoring.Logf("buttons: chime failed: %v", err)
		}
		b.sensor.RequestRead("wide", func(res sensor.Result) { b.report(ctx, res) })
	}
}

// report is invoked from the sensor's sequencing goroutine with the session
// result.
func (b *Buttons) report(ctx context.Context, res sensor.Result) {
	if res.Err != nil {
		monitoring.Logf("buttons: reading %s failed: %v", res.ID, res.Err)
		return
	}
	if !res.Matched {
		monitoring.Logf("buttons: reading %s: no usable sample", res.ID)
		return
	}
	if err := b.player.Play(ctx, res.Label); err != nil {
		monitoring.Logf("buttons: %v", err)
	}
}

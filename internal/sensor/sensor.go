// Package sensor implements the acquisition-and-classification engine for a
// TCS3200-class frequency-output colour sensor.
//
// The sensor exposes a square wave on its OUT line whose frequency is
// proportional to the intensity seen through the selected colour filter.
// Two select lines (S2/S3) pick the filter, two more (S0/S1) scale the
// output frequency, and /OE gates the output. One reading cycles the filters
// Red -> Blue -> Green -> Clear while the frequency counter state machine
// turns the edge stream into a per-colour Hertz triplet, which the
// classifier then matches against a pH reference table by vector angle.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ph.report/internal/gpio"
	"github.com/banshee-data/ph.report/internal/monitoring"
	"github.com/banshee-data/ph.report/internal/refdata"
	"github.com/banshee-data/ph.report/internal/timeutil"
)

// Filter selects the photodiode colour filter via the S2/S3 lines.
//
//	f  S2  S3  photodiode
//	0  L   L   Red
//	1  H   H   Green
//	2  L   H   Blue
//	3  H   L   Clear (no filter)
type Filter uint8

const (
	FilterRed   Filter = 0
	FilterGreen Filter = 1
	FilterBlue  Filter = 2
	FilterClear Filter = 3
)

// FreqScale selects the output frequency divider via the S0/S1 lines.
//
//	f  S0  S1  scaling
//	0  L   L   off
//	1  L   H   2%
//	2  H   L   20%
//	3  H   H   100%
type FreqScale uint8

const (
	FreqOff FreqScale = 0
	Freq2   FreqScale = 1
	Freq20  FreqScale = 2
	Freq100 FreqScale = 3
)

// Pins assigns controller line numbers to the sensor's terminals plus the
// output-enable line.
type Pins struct {
	Out uint8 `json:"out"`
	S0  uint8 `json:"s0"`
	S1  uint8 `json:"s1"`
	S2  uint8 `json:"s2"`
	S3  uint8 `json:"s3"`
	OE  uint8 `json:"oe"`
}

// DefaultPins returns the line assignments of the standard sensor board.
func DefaultPins() Pins {
	return Pins{Out: 24, S0: 4, S1: 17, S2: 22, S3: 23, OE: 18}
}

// Output-enable is active low.
const (
	oeActive   = gpio.Low
	oeInactive = gpio.High
)

// Tuning bounds. Setters clamp silently; callers observe the effective value
// through the corresponding getter.
const (
	minSampleSize = 10
	maxSampleSize = 100

	minChannelDelay = time.Millisecond
	maxChannelDelay = 500 * time.Millisecond

	// Delay search step applied when a channel saw no edges at all.
	noSignalDelayStep = 100 * time.Millisecond

	minUpdateInterval = 100 * time.Millisecond
	// The interval bound is exclusive at two seconds.
	maxUpdateInterval = 2*time.Second - time.Millisecond
)

// ReadRequest is one queued "take a reading" work item.
type ReadRequest struct {
	ID       uuid.UUID
	Table    string
	Callback func(Result)
}

// Recorder persists completed results. Implemented by the sqlite store; nil
// disables persistence.
type Recorder interface {
	RecordResult(Result) error
}

// Sensor drives one colour sensor through a LineController. Two execution
// contexts cooperate: the edge-feed goroutine owns the counter state, and
// the Run loop owns the sequencing, delays, and classification. The only
// state crossing between them is the counter's atomically committed Reading.
type Sensor struct {
	ctl      gpio.LineController
	clock    timeutil.Clock
	tables   *refdata.Store
	recorder Recorder
	pins     Pins

	counter *counter

	mu        sync.Mutex
	interval  time.Duration
	samples   int
	filter    Filter
	frequency FreqScale
	delay     [3]time.Duration

	requests chan ReadRequest
}

// New configures the sensor lines on the controller and returns a Sensor
// ready to Run. The select and enable lines become outputs, the OUT line and
// both filter select lines are watched for edges, the divider defaults to
// 20%, and the frequency output starts disabled with the Clear filter
// selected.
func New(ctl gpio.LineController, tables *refdata.Store, clock timeutil.Clock, pins Pins) (*Sensor, error) {
	s := &Sensor{
		ctl:      ctl,
		clock:    clock,
		tables:   tables,
		pins:     pins,
		counter:  newCounter(pins.Out, pins.S2, pins.S3),
		interval: time.Second,
		samples:  20,
		requests: make(chan ReadRequest, 16),
	}
	s.delay = [3]time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}

	for _, line := range []uint8{pins.S0, pins.S1, pins.S2, pins.S3, pins.OE} {
		if err := ctl.SetMode(line, gpio.Output); err != nil {
			return nil, fmt.Errorf("failed to configure line %d: %w", line, err)
		}
	}

	if err := ctl.WatchLine(pins.Out, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("failed to watch frequency line: %w", err)
	}
	if err := ctl.WatchLine(pins.S2, gpio.EitherEdge); err != nil {
		return nil, fmt.Errorf("failed to watch select line S2: %w", err)
	}
	if err := ctl.WatchLine(pins.S3, gpio.EitherEdge); err != nil {
		return nil, fmt.Errorf("failed to watch select line S3: %w", err)
	}

	if err := s.SetFrequency(Freq20); err != nil {
		return nil, err
	}
	if err := s.SetFilter(FilterClear); err != nil {
		return nil, err
	}

	// Frequency output disabled until a rotation starts; device enabled.
	if err := ctl.WriteLine(pins.Out, gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to disable frequency output: %w", err)
	}
	if err := ctl.WriteLine(pins.OE, oeActive); err != nil {
		return nil, fmt.Errorf("failed to enable device: %w", err)
	}

	return s, nil
}

// SetRecorder installs a result recorder. Must be called before Run.
func (s *Sensor) SetRecorder(r Recorder) {
	s.recorder = r
}

// RequestRead queues one reading against the named reference table. The
// callback receives the result exactly once, from the sequencing goroutine.
// Requests are serviced strictly one at a time, oldest first; a request
// arriving while a rotation is in progress waits for the next rotation.
func (s *Sensor) RequestRead(table string, callback func(Result)) uuid.UUID {
	req := ReadRequest{ID: uuid.New(), Table: table, Callback: callback}
	s.requests <- req
	monitoring.Logf("sensor: queued read request id=%s table=%s", req.ID, req.Table)
	return req.ID
}

// Hertz returns the latest committed triplet.
func (s *Sensor) Hertz() Reading {
	return s.counter.Committed()
}

// SetFrequency drives the S0/S1 divider lines. Values above 100% clamp to
// the 100% pair.
func (s *Sensor) SetFrequency(f FreqScale) error {
	if f > Freq100 {
		f = Freq100
	}

	var s0, s1 gpio.Level
	switch f {
	case FreqOff:
		s0, s1 = gpio.Low, gpio.Low
	case Freq2:
		s0, s1 = gpio.Low, gpio.High
	case Freq20:
		s0, s1 = gpio.High, gpio.Low
	default: // 100%
		s0, s1 = gpio.High, gpio.High
	}

	if err := s.ctl.WriteLine(s.pins.S0, s0); err != nil {
		return err
	}
	if err := s.ctl.WriteLine(s.pins.S1, s1); err != nil {
		return err
	}

	s.mu.Lock()
	s.frequency = f
	s.mu.Unlock()
	return nil
}

// GetFrequency returns the effective divider selection.
func (s *Sensor) GetFrequency() FreqScale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

// SetFilter drives the S2/S3 select lines. The hardware transitions these
// lines cause are exactly what the frequency counter keys its window
// boundaries on.
func (s *Sensor) SetFilter(f Filter) error {
	if f > FilterClear {
		f = FilterClear
	}

	var s2, s3 gpio.Level
	switch f {
	case FilterRed:
		s2, s3 = gpio.Low, gpio.Low
	case FilterGreen:
		s2, s3 = gpio.High, gpio.High
	case FilterBlue:
		s2, s3 = gpio.Low, gpio.High
	default: // Clear
		s2, s3 = gpio.High, gpio.Low
	}

	if err := s.ctl.WriteLine(s.pins.S2, s2); err != nil {
		return err
	}
	if err := s.ctl.WriteLine(s.pins.S3, s3); err != nil {
		return err
	}

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return nil
}

// GetFilter returns the effective filter selection.
func (s *Sensor) GetFilter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetUpdateInterval sets the rotation period, clamped to [100ms, 2s).
func (s *Sensor) SetUpdateInterval(d time.Duration) {
	if d < minUpdateInterval {
		d = minUpdateInterval
	} else if d > maxUpdateInterval {
		d = maxUpdateInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// GetUpdateInterval returns the effective rotation period.
func (s *Sensor) GetUpdateInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetSampleSize sets the pulse-count target per channel, clamped to
// [10, 100]. Too few pulses make the Hertz estimate noisy; too many make
// updates slow.
func (s *Sensor) SetSampleSize(samples int) {
	if samples < minSampleSize {
		samples = minSampleSize
	} else if samples > maxSampleSize {
		samples = maxSampleSize
	}
	s.mu.Lock()
	s.samples = samples
	s.mu.Unlock()
}

// GetSampleSize returns the effective pulse-count target.
func (s *Sensor) GetSampleSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// ChannelDelays returns the current adaptive exposure delays.
func (s *Sensor) ChannelDelays() [3]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Run services read requests until the context is cancelled. It subscribes
// to the controller's edge feed, pumping events into the counter from a
// dedicated goroutine so the sequencer's blocking sleeps never delay edge
// handling.
func (s *Sensor) Run(ctx context.Context) error {
	id, events := s.ctl.Subscribe()
	defer s.ctl.Unsubscribe(id)

	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.counter.handle(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.requests:
			s.service(ctx, req)
		}
	}
}

// service runs one end-to-end acquisition session: one rotation, delay
// adaptation, classification, persistence, and exactly-once delivery.
func (s *Sensor) service(ctx context.Context, req ReadRequest) {
	res := Result{ID: req.ID, Table: req.Table, At: s.clock.Now()}

	table, err := s.tables.Load(req.Table)
	if err != nil {
		monitoring.Logf("sensor: request %s: %v", req.ID, err)
		res.Err = err
		s.deliver(req, res)
		return
	}

	if err := s.rotate(ctx); err != nil {
		monitoring.Logf("sensor: request %s: rotation failed: %v", req.ID, err)
		res.Err = err
		s.deliver(req, res)
		return
	}

	sample := s.counter.Committed()
	s.adaptDelays(sample)

	res.Sample = sample
	if label, angle, ok := Classify(sample, table); ok {
		res.Label = label
		res.Angle = angle
		res.Matched = true
		monitoring.Logf("sensor: read pH %s table=%s sample=%v angle=%.4f", label, table.Name, sample.Hertz, angle)
	} else {
		monitoring.Logf("sensor: no usable sample table=%s", table.Name)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordResult(res); err != nil {
			monitoring.Logf("sensor: failed to record result %s: %v", req.ID, err)
		}
	}

	s.deliver(req, res)
}

func (s *Sensor) deliver(req ReadRequest, res Result) {
	if req.Callback != nil {
		req.Callback(res)
	}
}

// rotate performs one full Red -> Blue -> Green -> Clear rotation.
//
// The colour order is load-bearing: it flips exactly one select line per
// transition, which is what lets the counter decode window boundaries from
// single edges. Red -> Blue flips S3 high, Blue -> Green flips S2 high,
// Green -> Clear flips S3 low (the commit point), and the final
// Clear -> Red of the next rotation flips S2 low to restart counting.
func (s *Sensor) rotate(ctx context.Context) error {
	s.mu.Lock()
	interval := s.interval
	delay := s.delay
	s.mu.Unlock()

	deadline := s.clock.Now().Add(interval)

	// Switching OUT to an input lets the sensor drive it; the guard restores
	// it to a driven-low output even if a filter write fails mid-rotation.
	guard, err := gpio.AcquirePin(s.ctl, s.pins.Out, gpio.Input, gpio.Output)
	if err != nil {
		return fmt.Errorf("failed to enable frequency output: %w", err)
	}
	defer guard.Release()

	if err := s.SetFilter(FilterRed); err != nil {
		return err
	}
	s.clock.Sleep(delay[Red])

	if err := s.SetFilter(FilterBlue); err != nil {
		return err
	}
	s.clock.Sleep(delay[Blue])

	if err := s.SetFilter(FilterGreen); err != nil {
		return err
	}
	s.clock.Sleep(delay[Green])

	// Disable the frequency output before leaving the Green window so the
	// Clear window counts nothing.
	if err := guard.Release(); err != nil {
		return fmt.Errorf("failed to disable frequency output: %w", err)
	}

	if err := s.SetFilter(FilterClear); err != nil {
		return err
	}

	// Sleep out the remainder of the configured interval. If the exposure
	// overran it, proceed immediately; never a negative sleep.
	if remaining := deadline.Sub(s.clock.Now()); remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.clock.Sleep(remaining)
	}

	return nil
}

// adaptDelays retunes the per-channel exposure for the next rotation: long
// enough to capture the sample target at the last observed frequency, or a
// fixed step longer when a channel saw no edges at all.
func (s *Sensor) adaptDelays(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := 0; c < 3; c++ {
		var d time.Duration
		if r.Hertz[c] > 0 {
			d = time.Duration(float64(s.samples) / r.Hertz[c] * float64(time.Second))
		} else {
			d = s.delay[c] + noSignalDelayStep
		}

		if d < minChannelDelay {
			d = minChannelDelay
		} else if d > maxChannelDelay {
			d = maxChannelDelay
		}

		s.delay[c] = d
	}
}

// Shutdown parks the hardware: divider off, Clear filter, device disabled.
func (s *Sensor) Shutdown() {
	if err := s.SetFrequency(FreqOff); err != nil {
		monitoring.Logf("sensor: shutdown: %v", err)
	}
	if err := s.SetFilter(FilterClear); err != nil {
		monitoring.Logf("sensor: shutdown: %v", err)
	}
	if err := s.ctl.WriteLine(s.pins.OE, oeInactive); err != nil {
		monitoring.Logf("sensor: shutdown: %v", err)
	}
}

// Package timeutil abstracts wall-clock operations so the acquisition and
// feedback loops can run against a manually driven clock in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time surface used by the sequencer, the chime and the button
// poll loop.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the production Clock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }

// MockClock is a manually driven Clock. Sleep never blocks: it records the
// requested duration and moves the clock forward by it, so code that
// alternates sleeps with Now() observes consistent elapsed time.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration
	tickers []*MockTicker
}

// NewMockClock returns a MockClock positioned at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set jumps the clock to an absolute time without firing tickers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance moves the clock forward and fires any tickers whose next tick has
// come due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	due := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range due {
		t.fireIfDue(now)
	}
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.current = c.current.Add(d)
	}
}

// Sleeps returns every duration passed to Sleep, in call order.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.current.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTicker is a ticker driven by MockClock.Advance or by Trigger.
type MockTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Trigger delivers one tick immediately, regardless of the schedule. The
// tick is dropped if the channel is already full, matching time.Ticker.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *MockTicker) fireIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.next = now.Add(t.period)
}

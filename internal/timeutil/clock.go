// Package timeutil lets time-driven loops run against a fake clock. Workers
// take a Clock instead of calling the time package directly, and tests move
// time by hand instead of sleeping.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the slice of the time package a periodic worker needs.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock passes straight through to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }

// MockClock stands still until a test moves it. Tickers created from it fire
// during Advance, never on their own.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

// NewMockClock returns a clock frozen at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps the clock to t. Tickers are not consulted; use Advance when a
// tick should be delivered.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and fires every ticker whose period
// has elapsed. Each ticker fires at most once per call, stamped with the new
// time, which is enough to step a worker loop one iteration at a time.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := c.tickers
	c.mu.Unlock()

	// Fire outside the clock lock: a receiver may call back into the clock.
	for _, t := range tickers {
		t.fire(now)
	}
}

// NewTicker registers a ticker that comes due one period from the clock's
// current position.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		c:      make(chan time.Time, 1),
		period: d,
		due:    c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTicker is a ticker driven by MockClock.Advance rather than wall time.
type MockTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	period  time.Duration
	due     time.Time
	stopped bool
}

func (t *MockTicker) C() <-chan time.Time { return t.c }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Trigger delivers a tick carrying now directly, without moving any clock.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.c <- now:
	default:
	}
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || now.Before(t.due) {
		return
	}
	// Drop the tick if the last one was never read, like time.Ticker does.
	select {
	case t.c <- now:
	default:
	}
	t.due = now.Add(t.period)
}

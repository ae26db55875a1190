package backendtest

import (
	"sync"
	"time"
)

// Clock is a manually advanced backend.Clock
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	when  time.Time
	f     func()
	fired bool
}

// NewClock returns a clock pinned at the given instant.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f for when the clock is advanced past d. The returned
// timer is a stopped placeholder; Stop on it is a no-op, which is fine for
// the rate-limit logic that only stops superseded timers.
func (c *Clock) AfterFunc(d time.Duration, f func()) *time.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, &fakeTimer{when: c.now.Add(d), f: f})
	t := time.NewTimer(24 * time.Hour)
	t.Stop()
	return t
}

// Advance moves the clock forward and fires any timers that came due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.fired && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

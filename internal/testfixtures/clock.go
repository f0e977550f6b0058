package testfixtures

import (
	"sync"
	"time"
)

// Clock is the registry's time source in tests. It only moves when Advance
// is called and counts how many timestamps it has handed out, so tests can
// tell which operations wrote to the registry.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	stamps  int
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant and counts it as one stamp.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamps++
	return c.current
}

// NowFunc adapts the clock to migration.NewRegistry.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// Stamps reports how many times Now has been called.
func (c *Clock) Stamps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stamps
}

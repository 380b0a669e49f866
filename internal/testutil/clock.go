package testutil

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. The backup manager takes its
// time through a now() func, so tests pin it to a Clock instead of
// sleeping through timestamp-granular archive names.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock pinned to start, or to 2025-01-01 00:00:00 UTC
// when no start is given.
func NewClock(start ...time.Time) *Clock {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if len(start) > 0 {
		t = start[0]
	}
	return &Clock{t: t}
}

// Now returns the pinned time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the pinned time forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set repins the clock to an absolute time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

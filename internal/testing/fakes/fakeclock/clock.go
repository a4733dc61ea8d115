// Package fakeclock provides a controllable Clock implementation for testing.
package fakeclock

import (
	"sync"
	"time"

	"github.com/acolita/termtap/internal/ports"
)

// Clock is a fake clock whose time only moves when the test says so.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// New returns a fake Clock set to the given time.
func New(initial time.Time) *Clock {
	return &Clock{current: initial}
}

// Now returns the fake current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

var _ ports.Clock = (*Clock)(nil)

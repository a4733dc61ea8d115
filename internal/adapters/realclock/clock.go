// Package realclock implements the Clock port with the time package.
package realclock

import (
	"time"

	"github.com/acolita/termtap/internal/ports"
)

// Clock reads the system time.
type Clock struct{}

// New returns a new real Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now()
}

var _ ports.Clock = (*Clock)(nil)

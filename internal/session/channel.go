// Package session owns a running shell: it feeds it input, watches its
// output for prompt boundaries, and publishes what it sees as events.
package session

import (
	"io"
	"time"
)

// Channel is the transport to a running shell. The real implementation
// wraps a local pseudo-terminal; tests substitute a fake.
type Channel interface {
	io.Reader
	io.Writer

	// WriteString writes a string to the shell's input.
	WriteString(s string) (int, error)

	// Resize changes the terminal window size.
	Resize(rows, cols uint16) error

	// Interrupt delivers SIGINT to the foreground process group.
	Interrupt() error

	// SetReadDeadline bounds the next Read. The controller polls with
	// short deadlines so it can notice quiescence.
	SetReadDeadline(t time.Time) error

	// Close tears down the shell process and releases the terminal.
	Close() error
}

// Package fakechannel provides a scriptable shell transport for testing
// session logic without real terminals.
package fakechannel

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"
)

// Channel is a fake session transport. Tests queue output with Feed and
// inspect what the session wrote with Written. Reads with no queued data
// time out at the read deadline, which is how the session controller
// observes quiescence.
type Channel struct {
	mu          sync.Mutex
	pending     [][]byte
	written     bytes.Buffer
	closed      bool
	interrupts  int
	rows, cols  uint16
	deadline    time.Time
	onWrite     func(s string)
	readErr     error
	notify      chan struct{}
}

// New creates an empty fake channel.
func New() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

// Feed queues output chunks, one per Read call, and wakes a blocked reader.
func (c *Channel) Feed(chunks ...string) {
	c.mu.Lock()
	for _, chunk := range chunks {
		c.pending = append(c.pending, []byte(chunk))
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// OnWrite installs a hook called with every string written to the channel.
// The hook may call Feed to script a scrollback response.
func (c *Channel) OnWrite(fn func(s string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = fn
}

// FailReads makes every subsequent Read return err.
func (c *Channel) FailReads(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Written returns everything the session has written so far.
func (c *Channel) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

// Interrupts returns how many times Interrupt was called.
func (c *Channel) Interrupts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}

// Size returns the last requested terminal size.
func (c *Channel) Size() (rows, cols uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows, c.cols
}

// IsClosed reports whether Close was called.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Read pops the next queued chunk. With nothing queued it blocks until new
// data arrives or the read deadline passes, then reports a timeout.
func (c *Channel) Read(b []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.readErr != nil {
			err := c.readErr
			c.mu.Unlock()
			return 0, err
		}
		if c.closed {
			c.mu.Unlock()
			return 0, io.EOF
		}
		if len(c.pending) > 0 {
			chunk := c.pending[0]
			c.pending = c.pending[1:]
			n := copy(b, chunk)
			if n < len(chunk) {
				c.pending = append([][]byte{chunk[n:]}, c.pending...)
			}
			c.mu.Unlock()
			return n, nil
		}
		deadline := c.deadline
		c.mu.Unlock()

		wait := 5 * time.Millisecond
		if !deadline.IsZero() {
			wait = time.Until(deadline)
		}
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		select {
		case <-c.notify:
		case <-time.After(wait):
			return 0, os.ErrDeadlineExceeded
		}
	}
}

// Write captures written bytes and fires the OnWrite hook.
func (c *Channel) Write(b []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	n, err := c.written.Write(b)
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(string(b))
	}
	return n, err
}

// WriteString writes a string to the channel.
func (c *Channel) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Resize records the requested size.
func (c *Channel) Resize(rows, cols uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.rows, c.cols = rows, cols
	return nil
}

// Interrupt counts the interrupt request.
func (c *Channel) Interrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.interrupts++
	return nil
}

// SetReadDeadline bounds the next Read.
func (c *Channel) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

// Close marks the channel closed and wakes any blocked reader.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

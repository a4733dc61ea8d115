package session

import (
	"log/slog"
	"sync"

	"github.com/acolita/termtap/internal/track"
)

// EventType identifies what a session event carries.
type EventType string

const (
	// EventOutput carries a normalized chunk of terminal output.
	EventOutput EventType = "output"
	// EventCommandBoundary carries the record of a completed command.
	EventCommandBoundary EventType = "command_boundary"
	// EventIterationDone signals one step of an autonomous batch finished.
	EventIterationDone EventType = "iteration_done"
	// EventBatchDone signals the last step of an autonomous batch finished.
	EventBatchDone EventType = "batch_done"
	// EventBusyChanged signals the busy flag flipped.
	EventBusyChanged EventType = "busy_changed"
	// EventPasswordModeChanged signals input masking turned on or off.
	EventPasswordModeChanged EventType = "password_mode_changed"
	// EventCwdChanged signals the shell's working directory moved.
	EventCwdChanged EventType = "cwd_changed"
	// EventSessionError signals the session died and will accept no more
	// input.
	EventSessionError EventType = "session_error"
	// EventClosed signals an orderly shutdown.
	EventClosed EventType = "closed"
)

// Event is one observation published by the session controller. Only the
// fields relevant to the Type are populated.
type Event struct {
	Type EventType

	// Output is the normalized text chunk for EventOutput.
	Output string
	// ClearScreen is set on EventOutput when the raw chunk asked the
	// terminal to wipe its display.
	ClearScreen bool

	// Record accompanies EventCommandBoundary.
	Record *track.Record

	// Busy accompanies EventBusyChanged.
	Busy bool
	// PasswordMode accompanies EventPasswordModeChanged.
	PasswordMode bool
	// Cwd accompanies EventCwdChanged.
	Cwd string

	// Err accompanies EventSessionError.
	Err error
}

// bus fans events out to subscribers. Each subscriber gets its own buffered
// channel; a subscriber that falls behind loses events rather than stalling
// the session.
type bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

// subscribe registers a listener. The returned cancel func must be called
// when the listener is done; it closes the channel.
func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping session event for slow subscriber",
				slog.Int("subscriber", id),
				slog.String("event", string(ev.Type)))
		}
	}
}

func (b *bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

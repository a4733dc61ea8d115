package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/acolita/termtap/internal/adapters/realclock"
	"github.com/acolita/termtap/internal/ports"
	"github.com/acolita/termtap/internal/prompt"
	"github.com/acolita/termtap/internal/term"
	"github.com/acolita/termtap/internal/track"
)

var (
	// ErrClosed is returned by operations on a terminated session.
	ErrClosed = errors.New("session closed")
	// ErrBusy is returned when an operation needs an idle shell.
	ErrBusy = errors.New("session busy")
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultEventBuffer  = 64
	readBufferSize      = 32 * 1024
)

// Recorder receives the session's raw traffic for persistence. The asciicast
// recorder implements it; a nil Recorder disables recording.
type Recorder interface {
	RecordOutput(data string) error
	RecordInput(data string) error
	RecordMaskedInput(length int) error
}

// Options configures a Controller.
type Options struct {
	// Channel is the shell transport. When nil, Spawn is called once to
	// create it.
	Channel Channel
	// Spawn creates a fresh shell. Required for Reset to work; a session
	// without it dies on the first unrecoverable read error.
	Spawn func() (Channel, error)
	// Clock defaults to the real clock.
	Clock ports.Clock
	// Boundary defaults to a detector for the default sentinel.
	Boundary *prompt.BoundaryDetector
	// Password defaults to the built-in password prompt detector.
	Password *prompt.PasswordDetector
	// Recorder, when set, receives all input and output.
	Recorder Recorder
	// PollInterval is the read deadline used to detect quiescence.
	PollInterval time.Duration
	// EventBuffer sizes each subscriber's channel.
	EventBuffer int
	// CwdProbe enables the internal pwd probe after each completed
	// command. Off keeps the wire traffic free of injected commands.
	CwdProbe bool
}

// DefaultOptions returns the production configuration, minus the channel.
func DefaultOptions() Options {
	return Options{
		PollInterval: defaultPollInterval,
		EventBuffer:  defaultEventBuffer,
		CwdProbe:     true,
	}
}

// Controller owns one shell. A single worker goroutine reads the terminal;
// all other access is serialized through the controller's mutex, so public
// methods are safe to call from any goroutine.
type Controller struct {
	mu       sync.Mutex
	ch       Channel
	gen      int // bumped when ch is replaced, so stale read errors are ignored
	spawn    func() (Channel, error)
	clock    ports.Clock
	tracker  *track.Tracker
	boundary *prompt.BoundaryDetector
	password *prompt.PasswordDetector
	decoder  *term.Decoder
	norm     *term.Normalizer
	recorder Recorder
	events   *bus

	poll        time.Duration
	eventBuffer int
	probeCwd    bool

	scan          string // normalized output since the last confirmed boundary
	pending       *prompt.Match
	queue         []string // batch commands not yet submitted
	busy          bool
	passwordMode  bool
	introspecting bool
	cwd           string
	retried       bool
	closed        bool

	done       chan struct{}
	workerDone chan struct{}
}

// New starts a controller for the given shell and begins reading it.
func New(opts Options) (*Controller, error) {
	ch := opts.Channel
	if ch == nil {
		if opts.Spawn == nil {
			return nil, errors.New("session needs a channel or a spawn function")
		}
		var err error
		ch, err = opts.Spawn()
		if err != nil {
			return nil, fmt.Errorf("spawning shell: %w", err)
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = realclock.New()
	}
	boundary := opts.Boundary
	if boundary == nil {
		boundary = prompt.NewBoundaryDetector(prompt.DefaultSentinel)
	}
	password := opts.Password
	if password == nil {
		password = prompt.NewPasswordDetector()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	c := &Controller{
		ch:          ch,
		spawn:       opts.Spawn,
		clock:       clock,
		tracker:     track.New(clock),
		boundary:    boundary,
		password:    password,
		decoder:     term.NewDecoder(),
		norm:        term.NewNormalizer(),
		recorder:    opts.Recorder,
		events:      newBus(),
		poll:        poll,
		eventBuffer: buffer,
		probeCwd:    opts.CwdProbe,
		done:        make(chan struct{}),
		workerDone:  make(chan struct{}),
	}

	go c.run()
	return c, nil
}

// Subscribe registers an event listener. Call the returned cancel func when
// done; the channel closes on cancel or session shutdown.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe(c.eventBuffer)
}

// Run submits a command. A trailing newline is added when missing. Running
// while busy is allowed: the shell sees both writes, and the latest
// submission becomes the tracked command.
func (c *Controller) Run(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.submitLocked(cmd)
}

// RunBatch queues cmds for autonomous execution: each command is submitted
// when the previous one reaches its prompt boundary.
func (c *Controller) RunBatch(cmds []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(cmds) == 0 {
		return errors.New("empty command batch")
	}
	if c.busy {
		return ErrBusy
	}

	c.tracker.StartBatch(len(cmds))
	c.queue = append([]string(nil), cmds[1:]...)
	return c.submitLocked(cmds[0])
}

// Write sends input without command tracking: control tokens like <Ctrl-C>
// are translated to their byte sequences, anything else goes to the shell
// literally. Used for answering interactive prompts and driving full-screen
// programs.
func (c *Controller) Write(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	data := input
	if seq, ok := translateControl(input); ok {
		data = seq
	}
	if c.recorder != nil {
		if c.passwordMode {
			_ = c.recorder.RecordMaskedInput(len(data))
		} else {
			_ = c.recorder.RecordInput(data)
		}
	}
	if _, err := c.ch.WriteString(data); err != nil {
		return fmt.Errorf("writing input: %w", err)
	}
	return nil
}

// Interrupt sends SIGINT to the shell's foreground process group. The busy
// flag clears when the interrupted command's prompt comes back, not here.
func (c *Controller) Interrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ch.Interrupt(); err != nil {
		return fmt.Errorf("interrupting: %w", err)
	}
	return nil
}

// Resize changes the terminal window size.
func (c *Controller) Resize(rows, cols uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ch.Resize(rows, cols); err != nil {
		return fmt.Errorf("resizing terminal: %w", err)
	}
	return nil
}

// Reset replaces the shell with a fresh one. In-flight output, the pending
// command, and any queued batch are discarded.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.resetLocked()
}

// SyncCwd asks the shell for its working directory. The probe and its
// output stay internal; a CwdChanged event fires if the directory moved.
func (c *Controller) SyncCwd() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.busy || c.introspecting {
		return ErrBusy
	}
	return c.probeCwdLocked()
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	Busy         bool
	PasswordMode bool
	Cwd          string
	Mode         track.Mode
	// QueuedCommands counts batch commands not yet submitted to the shell.
	QueuedCommands int
	Closed         bool
}

// Status returns the current session snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Busy:           c.busy,
		PasswordMode:   c.passwordMode,
		Cwd:            c.cwd,
		Mode:           c.tracker.Mode(),
		QueuedCommands: len(c.queue),
		Closed:         c.closed,
	}
}

// Terminate shuts the session down: the shell process is closed, the worker
// stops, and all event channels close after a final Closed event.
func (c *Controller) Terminate() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	err := c.ch.Close()
	c.events.publish(Event{Type: EventClosed})
	c.mu.Unlock()

	<-c.workerDone
	c.events.closeAll()

	if err != nil {
		return fmt.Errorf("closing shell: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

// run is the single reader of the shell. Each iteration polls with a short
// deadline; a poll that returns no data is the quiescence signal that
// confirms a pending prompt boundary.
func (c *Controller) run() {
	defer close(c.workerDone)

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		ch := c.ch
		gen := c.gen
		c.mu.Unlock()

		_ = ch.SetReadDeadline(c.clock.Now().Add(c.poll))
		n, err := ch.Read(buf)

		if n > 0 {
			c.consume(buf[:n])
			continue
		}
		if err != nil && !os.IsTimeout(err) {
			if !c.handleReadError(err, gen) {
				return
			}
			continue
		}
		c.quiescent()
	}
}

// consume folds one raw chunk into the session state.
func (c *Controller) consume(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recorder != nil {
		_ = c.recorder.RecordOutput(string(data))
	}

	text := c.decoder.Decode(data)
	if text == "" {
		return
	}

	clear := term.IsClearScreen(text)
	plain := c.norm.Normalize(text)
	if clear {
		// The display was wiped; what follows starts a new screen.
		c.scan = ""
	}
	c.scan += plain

	if plain != "" || clear {
		if !c.introspecting {
			c.events.publish(Event{Type: EventOutput, Output: plain, ClearScreen: clear})
		}
	}

	// Re-evaluate the boundary on every chunk: new data after a prompt
	// means the prompt was not the end of the command.
	if m, ok := c.boundary.Find(c.scan); ok {
		c.pending = &m
	} else {
		c.pending = nil
	}

	if !c.passwordMode && c.pending == nil && c.password.Match(c.scan) {
		c.passwordMode = true
		c.events.publish(Event{Type: EventPasswordModeChanged, PasswordMode: true})
	}
}

// quiescent runs after a poll that produced no data. Only now does a
// detected prompt count as a command boundary.
func (c *Controller) quiescent() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return
	}
	m := *c.pending
	c.pending = nil

	c.tracker.AppendOutput(c.scan[:m.Start])
	c.scan = ""
	wasIntrospecting := c.introspecting
	c.introspecting = false
	c.retried = false

	res := c.tracker.OnBoundary()

	if c.passwordMode {
		c.passwordMode = false
		c.events.publish(Event{Type: EventPasswordModeChanged, PasswordMode: false})
	}
	if res.Cwd != "" && res.Cwd != c.cwd {
		c.cwd = res.Cwd
		c.events.publish(Event{Type: EventCwdChanged, Cwd: res.Cwd})
	}
	if wasIntrospecting {
		return
	}

	if res.Record != nil {
		c.events.publish(Event{Type: EventCommandBoundary, Record: res.Record})
	}
	if res.IterationDone {
		c.events.publish(Event{Type: EventIterationDone})
	}
	if res.BatchDone {
		c.events.publish(Event{Type: EventBatchDone, Record: res.Record})
	}

	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.submitLocked(next); err != nil {
			slog.Error("submitting next batch command", slog.Any("error", err))
			c.queue = nil
			c.tracker.Reset()
			c.setBusyLocked(false)
		}
		return
	}

	c.setBusyLocked(false)
	if c.probeCwd {
		if err := c.probeCwdLocked(); err != nil {
			slog.Warn("cwd probe failed", slog.Any("error", err))
		}
	}
}

// handleReadError decides whether the worker keeps going after a failed
// read. One automatic shell restart is attempted; a second failure before
// any successful boundary kills the session.
func (c *Controller) handleReadError(err error, gen int) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if gen != c.gen {
		// The channel was replaced while we were reading it; the error
		// belongs to the old shell.
		c.mu.Unlock()
		return true
	}

	if !c.retried && c.spawn != nil {
		c.retried = true
		slog.Warn("terminal read failed, restarting shell", slog.Any("error", err))
		if rerr := c.resetLocked(); rerr == nil {
			c.mu.Unlock()
			return true
		}
	}
	c.mu.Unlock()

	c.fail(fmt.Errorf("reading from terminal: %w", err))
	return false
}

// fail marks the session dead and tells subscribers why. Subscriber
// channels close once the worker has wound down, so consumers ranging them
// terminate just as they do after Terminate.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	_ = c.ch.Close()
	c.events.publish(Event{Type: EventSessionError, Err: err})
	c.mu.Unlock()

	slog.Error("session failed", slog.Any("error", err))

	// fail runs on the worker goroutine itself; the close has to wait for
	// it from the side.
	go func() {
		<-c.workerDone
		c.events.closeAll()
	}()
}

// ---------------------------------------------------------------------------
// Locked helpers
// ---------------------------------------------------------------------------

func (c *Controller) submitLocked(cmd string) error {
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}

	c.tracker.Submit(cmd)
	// Output for this command starts at the submission, not at whatever
	// was already sitting in the accumulator.
	c.scan = ""
	c.pending = nil
	c.introspecting = false

	if c.recorder != nil {
		_ = c.recorder.RecordInput(cmd)
	}
	if _, err := c.ch.WriteString(cmd); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}
	c.setBusyLocked(true)
	return nil
}

func (c *Controller) probeCwdLocked() error {
	c.tracker.BeginIntrospection()
	c.scan = ""
	c.pending = nil
	c.introspecting = true
	if _, err := c.ch.WriteString("pwd\n"); err != nil {
		c.introspecting = false
		return fmt.Errorf("writing cwd probe: %w", err)
	}
	return nil
}

func (c *Controller) resetLocked() error {
	if c.spawn == nil {
		return errors.New("session cannot be restarted without a spawn function")
	}

	if c.ch != nil {
		_ = c.ch.Close()
	}
	ch, err := c.spawn()
	if err != nil {
		return fmt.Errorf("restarting shell: %w", err)
	}
	c.ch = ch
	c.gen++

	c.decoder.Reset()
	c.norm.Reset()
	c.tracker.Reset()
	c.scan = ""
	c.pending = nil
	c.queue = nil
	c.introspecting = false
	c.setBusyLocked(false)
	if c.passwordMode {
		c.passwordMode = false
		c.events.publish(Event{Type: EventPasswordModeChanged, PasswordMode: false})
	}
	return nil
}

func (c *Controller) setBusyLocked(busy bool) {
	if c.busy == busy {
		return
	}
	c.busy = busy
	c.events.publish(Event{Type: EventBusyChanged, Busy: busy})
}

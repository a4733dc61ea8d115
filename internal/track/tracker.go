// Package track follows the lifecycle of commands running in a terminal
// session: what was submitted, what output it produced, and when the shell
// came back to a prompt.
package track

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acolita/termtap/internal/ports"
)

// Mode distinguishes who is driving the session.
type Mode int

const (
	// ModeInteractive records one command per submission.
	ModeInteractive Mode = iota
	// ModeAutonomous accumulates a whole batch into a single record,
	// counting down a known number of pending commands. No record exists
	// until the last one completes.
	ModeAutonomous
)

// Record is one completed command with its captured output.
type Record struct {
	ID          string
	Command     string
	Output      string
	CompletedAt time.Time
}

// BoundaryResult describes what a prompt boundary meant at the time it
// arrived.
type BoundaryResult struct {
	// Record is non-nil when a tracked command completed at this boundary.
	Record *Record
	// IterationDone is true in autonomous mode when a queued command
	// finished, whether or not more remain.
	IterationDone bool
	// BatchDone is true when the boundary completed the last command of an
	// autonomous batch.
	BatchDone bool
	// Cwd is the shell's working directory, parsed from introspection
	// output. Empty when this boundary did not follow an introspection.
	Cwd string
}

// Tracker is the session's command-boundary state machine. It is not safe
// for concurrent use; the session controller serializes access.
type Tracker struct {
	clock ports.Clock

	mode      Mode
	remaining int

	awaiting      bool // a submission is outstanding, next boundary closes it
	introspecting bool // the outstanding submission is an internal pwd probe
	command       strings.Builder
	output        strings.Builder
}

// New returns an idle Tracker in interactive mode.
func New(clock ports.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Mode returns the current driving mode.
func (t *Tracker) Mode() Mode {
	return t.mode
}

// Busy reports whether a submission is awaiting its boundary.
func (t *Tracker) Busy() bool {
	return t.awaiting
}

// Remaining returns how many autonomous commands have not yet been
// submitted to the shell.
func (t *Tracker) Remaining() int {
	return t.remaining
}

// StartBatch switches to autonomous mode expecting n commands. The caller
// submits them one at a time as boundaries arrive.
func (t *Tracker) StartBatch(n int) {
	t.mode = ModeAutonomous
	t.remaining = n
	t.command.Reset()
	t.output.Reset()
}

// Submit notes that cmd was written to the shell. In autonomous mode
// submissions concatenate into one logical command for the whole batch; in
// interactive mode each submission replaces the pending one.
func (t *Tracker) Submit(cmd string) {
	cmd = strings.TrimRight(cmd, "\r\n")

	switch t.mode {
	case ModeAutonomous:
		if t.command.Len() > 0 {
			t.command.WriteString("\n")
		}
		t.command.WriteString(cmd)
		if t.remaining > 0 {
			t.remaining--
		}
	default:
		t.command.Reset()
		t.command.WriteString(cmd)
		t.output.Reset()
	}

	t.awaiting = true
	t.introspecting = false
}

// BeginIntrospection marks the next boundary as closing an internal probe
// (a pwd written by the controller, not the caller). Its output is parsed,
// never recorded.
func (t *Tracker) BeginIntrospection() {
	t.output.Reset()
	t.awaiting = true
	t.introspecting = true
}

// AppendOutput accumulates normalized output for the in-flight command.
// Output arriving while idle belongs to no command and is dropped from the
// record keeping (subscribers still see it as raw output events).
func (t *Tracker) AppendOutput(text string) {
	if !t.awaiting {
		return
	}
	t.output.WriteString(text)
}

// OnBoundary consumes a detected prompt boundary and returns what it meant.
func (t *Tracker) OnBoundary() BoundaryResult {
	if !t.awaiting {
		return BoundaryResult{}
	}
	t.awaiting = false

	if t.introspecting {
		t.introspecting = false
		cwd := parseCwd(t.output.String())
		t.output.Reset()
		return BoundaryResult{Cwd: cwd}
	}

	res := BoundaryResult{}
	if t.mode == ModeAutonomous {
		res.IterationDone = true
		if t.remaining > 0 {
			// Mid-batch boundary: the command and output builders keep
			// accumulating until the last queued command completes.
			return res
		}
		res.BatchDone = true
		t.mode = ModeInteractive
	}

	cmd := t.command.String()
	out := t.output.String()
	t.command.Reset()
	t.output.Reset()

	// Shell resets wipe scrollback; recording them would pair a command
	// with output that no longer exists.
	if strings.Contains(cmd, "reset") {
		return res
	}

	res.Record = &Record{
		ID:          uuid.New().String(),
		Command:     cmd,
		Output:      out,
		CompletedAt: t.clock.Now(),
	}
	return res
}

// Reset returns the tracker to idle interactive state, discarding any
// in-flight command and queued batch.
func (t *Tracker) Reset() {
	t.mode = ModeInteractive
	t.remaining = 0
	t.awaiting = false
	t.introspecting = false
	t.command.Reset()
	t.output.Reset()
}

// parseCwd extracts the directory from pwd output: the first line that
// looks like an absolute path.
func parseCwd(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "/") {
			return line
		}
	}
	return ""
}

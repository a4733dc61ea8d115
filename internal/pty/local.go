// Package pty spawns a shell on a local pseudo-terminal with the sentinel
// prompt injected.
package pty

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/acolita/termtap/internal/prompt"
)

// Options configures the spawned shell.
type Options struct {
	Shell    string   // shell binary (defaults to $SHELL, then /bin/bash)
	Sentinel string   // prompt sentinel token
	Term     string   // TERM value (default dumb, keeps escape noise down)
	Rows     uint16   // terminal rows (default 24)
	Cols     uint16   // terminal columns (default 120)
	Dir      string   // initial working directory
	Env      []string // extra environment variables
	SourceRC bool     // let the shell read its rc files (risks a custom prompt)
}

// DefaultOptions returns the standard shell configuration.
func DefaultOptions() Options {
	return Options{
		Shell:    detectShell(),
		Sentinel: prompt.DefaultSentinel,
		Term:     "dumb",
		Rows:     24,
		Cols:     120,
	}
}

// Shell is a local shell process behind a pseudo-terminal. It implements the
// session transport: reads are deadline-bounded via the pty file, interrupts
// go to the foreground process group, and Close tears the whole group down.
type Shell struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	shell   string
	mu      sync.Mutex
	reap    sync.Once
	waitErr error
}

// Spawn starts the shell with the sentinel prompt injected. Unless SourceRC
// is set, rc files are suppressed so they cannot override the prompt.
func Spawn(opts Options) (*Shell, error) {
	if opts.Shell == "" {
		opts.Shell = detectShell()
	}
	if opts.Sentinel == "" {
		opts.Sentinel = prompt.DefaultSentinel
	}
	if opts.Term == "" {
		opts.Term = "dumb"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}

	var args []string
	if !opts.SourceRC {
		args = prompt.ShellInitArgs(opts.Shell)
	}
	cmd := exec.Command(opts.Shell, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TERM=%s", opts.Term),
		"NO_COLOR=1",
	)
	cmd.Env = append(cmd.Env, prompt.ShellPromptEnv(opts.Shell, opts.Sentinel)...)
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, fmt.Errorf("starting shell on pty: %w", err)
	}

	return &Shell{
		cmd:   cmd,
		ptmx:  ptmx,
		shell: opts.Shell,
	}, nil
}

// Path returns the shell binary in use.
func (s *Shell) Path() string {
	return s.shell
}

// Pid returns the shell's process id.
func (s *Shell) Pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Read reads shell output from the terminal.
func (s *Shell) Read(b []byte) (int, error) {
	return s.ptmx.Read(b)
}

// Write writes input to the terminal.
func (s *Shell) Write(b []byte) (int, error) {
	return s.ptmx.Write(b)
}

// WriteString writes a string to the terminal.
func (s *Shell) WriteString(str string) (int, error) {
	return s.ptmx.WriteString(str)
}

// SetReadDeadline bounds the next Read on the terminal file.
func (s *Shell) SetReadDeadline(t time.Time) error {
	return s.ptmx.SetReadDeadline(t)
}

// Resize changes the terminal window size and lets the kernel deliver
// SIGWINCH to the shell.
func (s *Shell) Resize(rows, cols uint16) error {
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("setting terminal size: %w", err)
	}
	return nil
}

// Interrupt sends SIGINT to the shell's process group, matching what a
// Ctrl-C at a real terminal would do.
func (s *Shell) Interrupt() error {
	return s.signalGroup(syscall.SIGINT)
}

// Wait blocks until the shell process exits and is reaped. Safe to call more
// than once; later calls return the same result.
func (s *Shell) Wait() error {
	s.reap.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close releases the terminal, terminates the shell and its children, and
// reaps the shell process so it cannot linger as a zombie.
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closeErr := s.ptmx.Close()

	if s.cmd.Process != nil {
		// SIGTERM the group first so children get a chance to exit, then
		// make sure the shell itself is gone.
		_ = s.signalGroup(syscall.SIGTERM)
		if err := s.cmd.Process.Kill(); err != nil && !isFinished(err) {
			return fmt.Errorf("killing shell: %w", err)
		}
		// The shell just got killed, so this returns promptly. The exit
		// status is an expected "signal: killed" here, not an error.
		_ = s.Wait()
	}

	if closeErr != nil {
		return fmt.Errorf("closing pty: %w", closeErr)
	}
	return nil
}

// signalGroup signals the shell's process group, falling back to the shell
// process alone when it leads no group.
func (s *Shell) signalGroup(sig syscall.Signal) error {
	if s.cmd.Process == nil {
		return fmt.Errorf("shell not started")
	}
	pid := s.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return nil
		}
	}
	return s.cmd.Process.Signal(sig)
}

func isFinished(err error) bool {
	return err != nil && err.Error() == "os: process already finished"
}

func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	for _, shell := range []string{"/bin/bash", "/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

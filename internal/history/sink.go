// Package history persists completed commands as per-command log files, the
// way an engagement log keeps one artifact per tool run.
package history

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/acolita/termtap/internal/ports"
	"github.com/acolita/termtap/internal/session"
	"github.com/acolita/termtap/internal/track"
)

// Options configures a Sink.
type Options struct {
	Dir string
	// AllowTools holds glob patterns matched against the command's tool
	// name. Empty means every command is logged.
	AllowTools []string
	// BlockTools holds glob patterns for tools never logged. Block wins
	// over allow.
	BlockTools []string
}

// Sink writes one log file per completed command. File names follow
// <tool>_<timestamp>.log, with a numeric suffix on collisions.
type Sink struct {
	mu    sync.Mutex
	fs    ports.FileSystem
	clock ports.Clock
	opts  Options
}

// NewSink creates the log directory and returns a sink writing into it.
func NewSink(opts Options, fs ports.FileSystem, clock ports.Clock) (*Sink, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("history directory not set")
	}
	if err := fs.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Sink{fs: fs, clock: clock, opts: opts}, nil
}

// Record writes the command's output to its own log file. Commands filtered
// out by the allow/block globs are silently skipped.
func (s *Sink) Record(rec *track.Record) (string, error) {
	tool := toolName(rec.Command)
	if tool == "" || !s.allowed(tool) {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.pickPath(tool, rec.CompletedAt)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# command: %s\n", rec.Command)
	fmt.Fprintf(&b, "# completed: %s\n\n", rec.CompletedAt.UTC().Format(time.RFC3339))
	b.WriteString(rec.Output)

	if err := s.fs.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return "", fmt.Errorf("write history file: %w", err)
	}
	return path, nil
}

// Consume drains session events into the sink until the channel closes.
// Run it on its own goroutine.
func (s *Sink) Consume(events <-chan session.Event) {
	for ev := range events {
		if ev.Type != session.EventCommandBoundary || ev.Record == nil {
			continue
		}
		if _, err := s.Record(ev.Record); err != nil {
			slog.Warn("recording command history", slog.Any("error", err))
		}
	}
}

// Prune removes log files older than maxAge. It returns how many files were
// deleted.
func (s *Sink) Prune(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.fs.ReadDir(s.opts.Dir)
	if err != nil {
		return 0, fmt.Errorf("list history directory: %w", err)
	}

	cutoff := s.clock.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := doublestar.Match("*_*.log", entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.opts.Dir, entry.Name())); err != nil {
			slog.Warn("pruning history file",
				slog.String("file", entry.Name()),
				slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Sink) allowed(tool string) bool {
	for _, pattern := range s.opts.BlockTools {
		if ok, _ := doublestar.Match(pattern, tool); ok {
			return false
		}
	}
	if len(s.opts.AllowTools) == 0 {
		return true
	}
	for _, pattern := range s.opts.AllowTools {
		if ok, _ := doublestar.Match(pattern, tool); ok {
			return true
		}
	}
	return false
}

// pickPath returns a file path that does not exist yet, suffixing (1), (2)
// and so on when a command of the same tool completed in the same second.
func (s *Sink) pickPath(tool string, at time.Time) (string, error) {
	stamp := at.Format("2006-01-02_15-04-05")
	base := fmt.Sprintf("%s_%s", tool, stamp)

	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s(%d)", base, n)
		}
		path := filepath.Join(s.opts.Dir, name+".log")
		if _, err := s.fs.Stat(path); err != nil {
			return path, nil
		}
		if n > 1000 {
			return "", fmt.Errorf("no free history filename for %s", base)
		}
	}
}

// toolName extracts the tool from a command line: the first token, stripped
// of any leading path. Environment assignments and sudo are skipped so
// "sudo nmap" logs as nmap.
func toolName(command string) string {
	fields := strings.Fields(command)
	for _, field := range fields {
		if strings.Contains(field, "=") {
			continue
		}
		if field == "sudo" || field == "env" || field == "nohup" {
			continue
		}
		name := filepath.Base(field)
		var clean strings.Builder
		for _, r := range name {
			if r == '_' || r == '-' || r == '.' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				clean.WriteRune(r)
			}
		}
		return clean.String()
	}
	return ""
}

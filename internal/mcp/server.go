// Package mcp exposes the terminal session over the MCP protocol.
package mcp

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/acolita/termtap/internal/adapters/realclock"
	"github.com/acolita/termtap/internal/adapters/realfs"
	"github.com/acolita/termtap/internal/config"
	"github.com/acolita/termtap/internal/history"
	"github.com/acolita/termtap/internal/ports"
	"github.com/acolita/termtap/internal/prompt"
	"github.com/acolita/termtap/internal/pty"
	"github.com/acolita/termtap/internal/recording"
	"github.com/acolita/termtap/internal/session"
)

// Server wraps the MCP server around one terminal session. The session is
// spawned on first use and lives until term_close or shutdown.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *config.Config
	fs        ports.FileSystem
	clock     ports.Clock

	mu        sync.Mutex
	sessionID string
	ctrl      *session.Controller
	recorder  *recording.Recorder
	histStop  func()

	// spawnSession builds the controller; tests swap it for one backed by
	// a fake channel.
	spawnSession func() (*session.Controller, error)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFileSystem sets the filesystem used by the server.
func WithFileSystem(fs ports.FileSystem) ServerOption {
	return func(s *Server) { s.fs = fs }
}

// WithClock sets the clock used by the server.
func WithClock(clock ports.Clock) ServerOption {
	return func(s *Server) { s.clock = clock }
}

// WithSessionFactory replaces how the terminal session is created.
func WithSessionFactory(factory func() (*session.Controller, error)) ServerOption {
	return func(s *Server) { s.spawnSession = factory }
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	mcpServer := server.NewMCPServer(
		"termtap",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		fs:        realfs.New(),
		clock:     realclock.New(),
	}
	s.spawnSession = s.spawnReal

	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport.
func (s *Server) Run() error {
	slog.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// UpdateConfig applies a new configuration at runtime. Shell settings apply
// to the next session; an already running shell keeps its environment.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	slog.Debug("config updated")
}

// Close tears the session down.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSessionLocked()
}

// session returns the running controller, spawning it on first use.
func (s *Server) session() (*session.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil && !s.ctrl.Status().Closed {
		return s.ctrl, nil
	}

	ctrl, err := s.spawnSession()
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	return ctrl, nil
}

// spawnReal builds the production session: a local pty shell, the prompt
// detectors extended with configured patterns, optional recording, and the
// command history sink.
func (s *Server) spawnReal() (*session.Controller, error) {
	cfg := s.cfg
	s.sessionID = uuid.New().String()[:8]

	shellOpts := pty.DefaultOptions()
	if cfg.Shell.Path != "" {
		shellOpts.Shell = cfg.Shell.Path
	}
	if cfg.Shell.Sentinel != "" {
		shellOpts.Sentinel = cfg.Shell.Sentinel
	}
	if cfg.Shell.Term != "" {
		shellOpts.Term = cfg.Shell.Term
	}
	if cfg.Shell.Rows != 0 {
		shellOpts.Rows = cfg.Shell.Rows
	}
	if cfg.Shell.Cols != 0 {
		shellOpts.Cols = cfg.Shell.Cols
	}
	shellOpts.SourceRC = cfg.Shell.SourceRC

	boundary := prompt.NewBoundaryDetector(shellOpts.Sentinel)
	for _, expr := range cfg.PromptDetection.BoundaryPatterns {
		if err := boundary.AddCustom(expr); err != nil {
			slog.Warn("skipping boundary pattern", slog.Any("error", err))
		}
	}
	password := prompt.NewPasswordDetector()
	for _, expr := range cfg.PromptDetection.PasswordPatterns {
		if err := password.AddCustom(expr); err != nil {
			slog.Warn("skipping password pattern", slog.Any("error", err))
		}
	}

	sessOpts := session.DefaultOptions()
	sessOpts.Clock = s.clock
	sessOpts.Boundary = boundary
	sessOpts.Password = password
	sessOpts.PollInterval = cfg.Session.PollInterval
	sessOpts.CwdProbe = cfg.Session.CwdProbe
	sessOpts.Spawn = func() (session.Channel, error) {
		return pty.Spawn(shellOpts)
	}

	if cfg.Recording.Enabled {
		recorder, err := recording.New(recording.Options{
			Dir:       cfg.Recording.Path,
			SessionID: s.sessionID,
			Width:     int(shellOpts.Cols),
			Height:    int(shellOpts.Rows),
			Shell:     shellOpts.Shell,
			Term:      shellOpts.Term,
		}, s.fs, s.clock)
		if err != nil {
			return nil, fmt.Errorf("starting recording: %w", err)
		}
		s.recorder = recorder
		sessOpts.Recorder = recorder
		slog.Info("recording session", slog.String("path", recorder.Path()))
	}

	ctrl, err := session.New(sessOpts)
	if err != nil {
		if s.recorder != nil {
			s.recorder.Close()
			s.recorder = nil
		}
		return nil, err
	}

	if cfg.History.Enabled {
		sink, err := history.NewSink(history.Options{
			Dir:        cfg.History.Directory,
			AllowTools: cfg.History.AllowTools,
			BlockTools: cfg.History.BlockTools,
		}, s.fs, s.clock)
		if err != nil {
			slog.Warn("command history disabled", slog.Any("error", err))
		} else {
			events, cancel := ctrl.Subscribe()
			s.histStop = cancel
			go sink.Consume(events)
			if cfg.History.Retention > 0 {
				maxAge := time.Duration(cfg.History.Retention) * 24 * time.Hour
				go func() {
					if n, err := sink.Prune(maxAge); err != nil {
						slog.Warn("pruning command history", slog.Any("error", err))
					} else if n > 0 {
						slog.Info("pruned command history", slog.Int("removed", n))
					}
				}()
			}
		}
	}

	slog.Info("terminal session started",
		slog.String("session_id", s.sessionID),
		slog.String("shell", shellOpts.Shell),
	)
	return ctrl, nil
}

func (s *Server) closeSessionLocked() error {
	if s.ctrl == nil {
		return nil
	}
	err := s.ctrl.Terminate()
	s.ctrl = nil

	if s.histStop != nil {
		s.histStop()
		s.histStop = nil
	}
	if s.recorder != nil {
		if cerr := s.recorder.Close(); cerr != nil {
			slog.Warn("closing recording", slog.Any("error", cerr))
		}
		s.recorder = nil
	}
	return err
}

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/termtap/internal/logging"
	"github.com/acolita/termtap/internal/session"
	"github.com/acolita/termtap/internal/track"
)

const defaultTimeoutMs = 30000

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(termExecTool(), s.handleTermExec)
	s.mcpServer.AddTool(termBatchTool(), s.handleTermBatch)
	s.mcpServer.AddTool(termWriteTool(), s.handleTermWrite)
	s.mcpServer.AddTool(termInputTool(), s.handleTermInput)
	s.mcpServer.AddTool(termInterruptTool(), s.handleTermInterrupt)
	s.mcpServer.AddTool(termResizeTool(), s.handleTermResize)
	s.mcpServer.AddTool(termResetTool(), s.handleTermReset)
	s.mcpServer.AddTool(termStatusTool(), s.handleTermStatus)
	s.mcpServer.AddTool(termCloseTool(), s.handleTermClose)
}

// Tool definitions

func termExecTool() mcp.Tool {
	return mcp.NewTool("term_exec",
		mcp.WithDescription("Run a command in the persistent shell and wait for its prompt to return"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to execute"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("How long to wait for completion before returning partial output (default: 30000)"),
		),
	)
}

func termBatchTool() mcp.Tool {
	return mcp.NewTool("term_batch",
		mcp.WithDescription("Run several commands in order, submitting each one when the previous prompt returns"),
		mcp.WithArray("commands",
			mcp.Required(),
			mcp.Description("Commands to run in order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("How long to wait for the whole batch (default: 30000)"),
		),
	)
}

func termWriteTool() mcp.Tool {
	return mcp.NewTool("term_write",
		mcp.WithDescription("Send raw keystrokes to the terminal. Control keys are spelled as tokens: <Ctrl-C>, <Ctrl-Z>, <Ctrl-D>, <Ctrl-\\>, <Up>, <Down>, <Enter>, <Tab>, <Esc>"),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("Literal text or a single control token"),
		),
		mcp.WithNumber("settle_ms",
			mcp.Description("How long to collect resulting output before returning (default: 500)"),
		),
	)
}

func termInputTool() mcp.Tool {
	return mcp.NewTool("term_input",
		mcp.WithDescription("Answer an interactive prompt (password, confirmation) with a line of input"),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("The input line; a newline is appended"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("How long to wait for the command to finish afterwards (default: 30000)"),
		),
	)
}

func termInterruptTool() mcp.Tool {
	return mcp.NewTool("term_interrupt",
		mcp.WithDescription("Send SIGINT (Ctrl+C) to the running command"),
	)
}

func termResizeTool() mcp.Tool {
	return mcp.NewTool("term_resize",
		mcp.WithDescription("Resize the terminal window"),
		mcp.WithNumber("rows",
			mcp.Required(),
			mcp.Description("Terminal rows"),
		),
		mcp.WithNumber("cols",
			mcp.Required(),
			mcp.Description("Terminal columns"),
		),
	)
}

func termResetTool() mcp.Tool {
	return mcp.NewTool("term_reset",
		mcp.WithDescription("Replace the shell with a fresh one, discarding any running command"),
	)
}

func termStatusTool() mcp.Tool {
	return mcp.NewTool("term_status",
		mcp.WithDescription("Report whether the shell is busy, awaiting a password, and its working directory"),
	)
}

func termCloseTool() mcp.Tool {
	return mcp.NewTool("term_close",
		mcp.WithDescription("Terminate the shell session"),
	)
}

// Results

// ExecResult is what command-running tools return.
type ExecResult struct {
	// Status is "completed", "awaiting_input", "running" or "closed".
	Status     string `json:"status"`
	Command    string `json:"command,omitempty"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	// Prompt carries the tail of the output when Status is awaiting_input.
	Prompt string `json:"prompt,omitempty"`
}

// BatchResult reports an autonomous batch run: the whole batch forms one
// logical command with one accumulated output.
type BatchResult struct {
	Status     string `json:"status"` // "completed" or "partial"
	Command    string `json:"command,omitempty"`
	Output     string `json:"output"`
	Iterations int    `json:"iterations"`
	DurationMs int64  `json:"duration_ms"`
}

// StatusResult is the term_status payload.
type StatusResult struct {
	Busy          bool   `json:"busy"`
	PasswordMode  bool   `json:"password_mode"`
	Cwd           string `json:"cwd,omitempty"`
	Autonomous    bool   `json:"autonomous"`
	QueuedCount   int    `json:"queued_commands"`
	Closed        bool   `json:"closed"`
	RecordingPath string `json:"recording_path,omitempty"`
}

// Tool handlers

func (s *Server) handleTermExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := mcp.ParseString(req, "command", "")
	timeout := parseTimeout(req, "timeout_ms", defaultTimeoutMs)

	if strings.TrimSpace(command) == "" {
		return mcp.NewToolResultError("command is required"), nil
	}

	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slog.Info("executing command", slog.String("command", command))

	events, cancel := ctrl.Subscribe()
	defer cancel()

	start := s.clock.Now()
	if err := ctrl.Run(command); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := waitOutcome(ctx, events, timeout)
	result.Command = strings.TrimRight(command, "\n")
	result.DurationMs = s.clock.Now().Sub(start).Milliseconds()

	slog.Debug("command finished",
		slog.String("status", result.Status),
		logging.OutputAttr("output", result.Output),
	)
	return jsonResult(result)
}

func (s *Server) handleTermBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commands := parseStringSlice(req, "commands")
	timeout := parseTimeout(req, "timeout_ms", defaultTimeoutMs)

	if len(commands) == 0 {
		return mcp.NewToolResultError("commands is required"), nil
	}

	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slog.Info("executing command batch", slog.Int("count", len(commands)))

	events, cancel := ctrl.Subscribe()
	defer cancel()

	start := s.clock.Now()
	if err := ctrl.RunBatch(commands); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	batch := BatchResult{Status: "partial"}
	var record *track.Record
	var out strings.Builder
	deadline := time.After(timeout)

collect:
	for {
		select {
		case <-ctx.Done():
			break collect
		case <-deadline:
			break collect
		case ev, ok := <-events:
			if !ok {
				break collect
			}
			switch ev.Type {
			case session.EventOutput:
				out.WriteString(ev.Output)
			case session.EventIterationDone:
				batch.Iterations++
			case session.EventBatchDone:
				batch.Status = "completed"
				record = ev.Record
				break collect
			case session.EventSessionError:
				break collect
			}
		}
	}

	if record != nil {
		batch.Command = record.Command
		batch.Output = record.Output
	} else {
		batch.Output = out.String()
	}
	batch.DurationMs = s.clock.Now().Sub(start).Milliseconds()

	slog.Debug("batch finished",
		slog.String("status", batch.Status),
		logging.OutputAttr("output", batch.Output),
	)
	return jsonResult(batch)
}

func (s *Server) handleTermWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := mcp.ParseString(req, "input", "")
	settle := parseTimeout(req, "settle_ms", 500)

	if input == "" {
		return mcp.NewToolResultError("input is required"), nil
	}

	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	events, cancel := ctrl.Subscribe()
	defer cancel()

	if err := ctrl.Write(input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Collect whatever the keystrokes provoke, then hand control back.
	var out strings.Builder
	deadline := time.After(settle)
	for {
		select {
		case <-ctx.Done():
			return jsonResult(ExecResult{Status: "running", Output: out.String()})
		case <-deadline:
			status := "running"
			if !ctrl.Status().Busy {
				status = "completed"
			}
			return jsonResult(ExecResult{Status: status, Output: out.String()})
		case ev, ok := <-events:
			if !ok {
				return jsonResult(ExecResult{Status: "closed", Output: out.String()})
			}
			if ev.Type == session.EventOutput {
				out.WriteString(ev.Output)
			}
		}
	}
}

func (s *Server) handleTermInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := mcp.ParseString(req, "input", "")
	timeout := parseTimeout(req, "timeout_ms", defaultTimeoutMs)

	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	masked := ctrl.Status().PasswordMode
	if masked {
		slog.Info("providing masked input")
	} else {
		slog.Info("providing input", slog.Int("length", len(input)))
	}

	events, cancel := ctrl.Subscribe()
	defer cancel()

	start := s.clock.Now()
	if err := ctrl.Write(input + "\n"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := waitOutcome(ctx, events, timeout)
	result.DurationMs = s.clock.Now().Sub(start).Milliseconds()
	return jsonResult(result)
}

func (s *Server) handleTermInterrupt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slog.Info("interrupting session")
	if err := ctrl.Interrupt(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Interrupt signal sent"), nil
}

func (s *Server) handleTermResize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows := mcp.ParseInt(req, "rows", 0)
	cols := mcp.ParseInt(req, "cols", 0)
	if rows <= 0 || cols <= 0 || rows > 0xffff || cols > 0xffff {
		return mcp.NewToolResultError("rows and cols must be positive"), nil
	}

	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := ctrl.Resize(uint16(rows), uint16(cols)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Terminal resized"), nil
}

func (s *Server) handleTermReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctrl, err := s.session()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	slog.Info("resetting session")
	if err := ctrl.Reset(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Session reset with a fresh shell"), nil
}

func (s *Server) handleTermStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	ctrl := s.ctrl
	recorder := s.recorder
	s.mu.Unlock()

	if ctrl == nil {
		return jsonResult(StatusResult{Closed: true})
	}

	st := ctrl.Status()
	result := StatusResult{
		Busy:         st.Busy,
		PasswordMode: st.PasswordMode,
		Cwd:          st.Cwd,
		Autonomous:   st.Mode == track.ModeAutonomous,
		QueuedCount:  st.QueuedCommands,
		Closed:       st.Closed,
	}
	if recorder != nil {
		result.RecordingPath = recorder.Path()
	}
	return jsonResult(result)
}

func (s *Server) handleTermClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slog.Info("closing session")
	if err := s.Close(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Session closed"), nil
}

// waitOutcome follows the event stream until the command completes, asks for
// input, or the timeout passes with the command still running.
func waitOutcome(ctx context.Context, events <-chan session.Event, timeout time.Duration) ExecResult {
	var out strings.Builder
	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ExecResult{Status: "running", Output: out.String()}
		case <-deadline:
			return ExecResult{Status: "running", Output: out.String()}
		case ev, ok := <-events:
			if !ok {
				return ExecResult{Status: "closed", Output: out.String()}
			}
			switch ev.Type {
			case session.EventOutput:
				out.WriteString(ev.Output)
			case session.EventCommandBoundary:
				return ExecResult{Status: "completed", Output: ev.Record.Output}
			case session.EventPasswordModeChanged:
				if ev.PasswordMode {
					return ExecResult{
						Status: "awaiting_input",
						Output: out.String(),
						Prompt: promptTail(out.String()),
					}
				}
			case session.EventSessionError:
				return ExecResult{Status: "closed", Output: out.String()}
			}
		}
	}
}

// promptTail returns the last line of output, which is usually the prompt
// that paused the command.
func promptTail(output string) string {
	trimmed := strings.TrimRight(output, "\n")
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func parseTimeout(req mcp.CallToolRequest, key string, fallbackMs int) time.Duration {
	ms := mcp.ParseInt(req, key, fallbackMs)
	if ms <= 0 {
		ms = fallbackMs
	}
	return time.Duration(ms) * time.Millisecond
}

func parseStringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// jsonResult converts a value to a JSON tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

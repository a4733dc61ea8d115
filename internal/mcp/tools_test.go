package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/termtap/internal/config"
	"github.com/acolita/termtap/internal/session"
	"github.com/acolita/termtap/internal/testing/fakes/fakechannel"
	"github.com/acolita/termtap/internal/testing/fakes/fakefs"
)

// --- Test helpers ---

func newTestServer(t *testing.T, ch *fakechannel.Channel) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	srv := NewServer(cfg,
		WithFileSystem(fakefs.New()),
		WithSessionFactory(func() (*session.Controller, error) {
			return session.New(session.Options{
				Channel:      ch,
				PollInterval: 2 * time.Millisecond,
			})
		}),
	)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func makeRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	tc, ok := mcpgo.AsTextContent(result.Content[0])
	if !ok {
		return ""
	}
	return tc.Text
}

func resultJSON(t *testing.T, result *mcpgo.CallToolResult) map[string]any {
	t.Helper()
	text := resultText(result)
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		t.Fatalf("failed to parse result JSON: %v (text: %s)", err, text)
	}
	return m
}

// --- handleTermExec ---

func TestHandleTermExec_MissingCommand(t *testing.T) {
	srv := newTestServer(t, fakechannel.New())

	result, err := srv.handleTermExec(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing command")
	}
}

func TestHandleTermExec_Completed(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		if s == "echo hi\n" {
			ch.Feed("echo hi\r\nhi\r\ntermtap ~$ ")
		}
	})
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{"command": "echo hi"})
	result, err := srv.handleTermExec(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}

	m := resultJSON(t, result)
	if m["status"] != "completed" {
		t.Errorf("status = %v, want completed", m["status"])
	}
	if m["command"] != "echo hi" {
		t.Errorf("command = %v, want echo hi", m["command"])
	}
	if m["output"] != "echo hi\nhi\n" {
		t.Errorf("output = %q", m["output"])
	}
}

func TestHandleTermExec_TimeoutReturnsPartial(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		if s == "sleep 100\n" {
			ch.Feed("sleep 100\r\n")
		}
	})
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{
		"command":    "sleep 100",
		"timeout_ms": float64(50),
	})
	result, err := srv.handleTermExec(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := resultJSON(t, result)
	if m["status"] != "running" {
		t.Errorf("status = %v, want running", m["status"])
	}
	if !strings.Contains(m["output"].(string), "sleep 100") {
		t.Errorf("partial output missing echoed command: %q", m["output"])
	}
}

func TestHandleTermExec_PasswordPromptPauses(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		if s == "sudo -S true\n" {
			ch.Feed("[sudo] password for operator: ")
		}
	})
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{"command": "sudo -S true"})
	result, err := srv.handleTermExec(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := resultJSON(t, result)
	if m["status"] != "awaiting_input" {
		t.Fatalf("status = %v, want awaiting_input", m["status"])
	}
	if !strings.Contains(m["prompt"].(string), "password") {
		t.Errorf("prompt = %q, should carry the password prompt", m["prompt"])
	}
}

// --- handleTermBatch ---

func TestHandleTermBatch_MissingCommands(t *testing.T) {
	srv := newTestServer(t, fakechannel.New())

	result, err := srv.handleTermBatch(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing commands")
	}
}

func TestHandleTermBatch_RunsAllCommands(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		switch s {
		case "whoami\n":
			ch.Feed("whoami\r\noperator\r\ntermtap ~$ ")
		case "id\n":
			ch.Feed("id\r\nuid=1000\r\ntermtap ~$ ")
		}
	})
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{
		"commands": []any{"whoami", "id"},
	})
	result, err := srv.handleTermBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}

	m := resultJSON(t, result)
	if m["status"] != "completed" {
		t.Errorf("status = %v, want completed", m["status"])
	}
	if m["command"] != "whoami\nid" {
		t.Errorf("command = %v, want the concatenated batch", m["command"])
	}
	output := m["output"].(string)
	if !strings.Contains(output, "operator") || !strings.Contains(output, "uid=1000") {
		t.Errorf("output = %q, want output from every batch command", output)
	}
	if m["iterations"] != float64(2) {
		t.Errorf("iterations = %v, want 2", m["iterations"])
	}
}

// --- handleTermWrite ---

func TestHandleTermWrite_MissingInput(t *testing.T) {
	srv := newTestServer(t, fakechannel.New())

	result, err := srv.handleTermWrite(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing input")
	}
}

func TestHandleTermWrite_ControlToken(t *testing.T) {
	ch := fakechannel.New()
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{
		"input":     "<Ctrl-C>",
		"settle_ms": float64(20),
	})
	result, err := srv.handleTermWrite(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	if ch.Written() != "\x03" {
		t.Errorf("written = %q, want \\x03", ch.Written())
	}
}

func TestHandleTermWrite_CollectsOutput(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		if s == "y" {
			ch.Feed("y")
		}
	})
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{
		"input":     "y",
		"settle_ms": float64(100),
	})
	result, err := srv.handleTermWrite(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := resultJSON(t, result)
	if m["output"] != "y" {
		t.Errorf("output = %q, want y", m["output"])
	}
}

// --- handleTermInput ---

func TestHandleTermInput_AnswersPasswordPrompt(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		switch s {
		case "sudo -S true\n":
			ch.Feed("[sudo] password for operator: ")
		case "hunter2\n":
			ch.Feed("\r\ntermtap ~$ ")
		}
	})
	srv := newTestServer(t, ch)

	execReq := makeRequest(map[string]any{"command": "sudo -S true"})
	result, err := srv.handleTermExec(context.Background(), execReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := resultJSON(t, result); m["status"] != "awaiting_input" {
		t.Fatalf("exec status = %v, want awaiting_input", m["status"])
	}

	inputReq := makeRequest(map[string]any{"input": "hunter2"})
	result, err = srv.handleTermInput(context.Background(), inputReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}

	m := resultJSON(t, result)
	if m["status"] != "completed" {
		t.Errorf("status = %v, want completed", m["status"])
	}
}

// --- handleTermInterrupt ---

func TestHandleTermInterrupt(t *testing.T) {
	ch := fakechannel.New()
	srv := newTestServer(t, ch)

	result, err := srv.handleTermInterrupt(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	if ch.Interrupts() != 1 {
		t.Errorf("interrupts = %d, want 1", ch.Interrupts())
	}
}

// --- handleTermResize ---

func TestHandleTermResize_InvalidDimensions(t *testing.T) {
	srv := newTestServer(t, fakechannel.New())

	req := makeRequest(map[string]any{
		"rows": float64(0),
		"cols": float64(80),
	})
	result, err := srv.handleTermResize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for zero rows")
	}
}

func TestHandleTermResize_Success(t *testing.T) {
	ch := fakechannel.New()
	srv := newTestServer(t, ch)

	req := makeRequest(map[string]any{
		"rows": float64(50),
		"cols": float64(200),
	})
	result, err := srv.handleTermResize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	rows, cols := ch.Size()
	if rows != 50 || cols != 200 {
		t.Errorf("size = %dx%d, want 50x200", rows, cols)
	}
}

// --- handleTermStatus ---

func TestHandleTermStatus_NoSession(t *testing.T) {
	srv := newTestServer(t, fakechannel.New())

	result, err := srv.handleTermStatus(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := resultJSON(t, result)
	if m["closed"] != true {
		t.Errorf("closed = %v, want true before first use", m["closed"])
	}
}

func TestHandleTermStatus_IdleSession(t *testing.T) {
	ch := fakechannel.New()
	ch.OnWrite(func(s string) {
		if s == "true\n" {
			ch.Feed("true\r\ntermtap ~$ ")
		}
	})
	srv := newTestServer(t, ch)

	execReq := makeRequest(map[string]any{"command": "true"})
	if _, err := srv.handleTermExec(context.Background(), execReq); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := srv.handleTermStatus(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := resultJSON(t, result)
	if m["busy"] != false {
		t.Errorf("busy = %v, want false", m["busy"])
	}
	if m["closed"] != false {
		t.Errorf("closed = %v, want false", m["closed"])
	}
}

// --- handleTermClose ---

func TestHandleTermClose(t *testing.T) {
	ch := fakechannel.New()
	srv := newTestServer(t, ch)

	// Spawn the session first so there is something to close.
	if _, err := srv.session(); err != nil {
		t.Fatalf("session: %v", err)
	}

	result, err := srv.handleTermClose(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	if !ch.IsClosed() {
		t.Error("channel should be closed after term_close")
	}
}

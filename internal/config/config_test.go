package config

import (
	"strings"
	"testing"
	"time"

	"github.com/acolita/termtap/internal/testing/fakes/fakefs"
)

// ---------------------------------------------------------------------------
// 1. Defaults
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("poll interval = %v, want 100ms", cfg.Session.PollInterval)
	}
	if !cfg.Session.CwdProbe {
		t.Error("cwd probe should default to on")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
	if !cfg.Logging.Sanitize {
		t.Error("log sanitizing should default to on")
	}
	if cfg.History.Retention != 30 {
		t.Errorf("history retention = %d, want 30", cfg.History.Retention)
	}
	if cfg.Recording.Enabled {
		t.Error("recording should default to off")
	}
}

// ---------------------------------------------------------------------------
// 2. Load
// ---------------------------------------------------------------------------

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("poll interval = %v, want default", cfg.Session.PollInterval)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	fs := fakefs.New()
	cfg, err := Load("/etc/termtap/config.yaml", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	fs := fakefs.New()
	fs.AddFile("/etc/termtap/config.yaml", []byte(`
shell:
  path: /bin/zsh
  sentinel: myprompt
  rows: 40
  cols: 160
session:
  poll_interval: 250ms
  cwd_probe: false
logging:
  level: debug
history:
  enabled: true
  directory: /var/log/termtap
  allow_tools: ["nmap*", "gobuster"]
  block_tools: ["*secret*"]
  retention: 7
recording:
  enabled: true
  path: /var/rec
prompt_detection:
  boundary_patterns: ['msf6.*> $']
`), 0o644)

	cfg, err := Load("/etc/termtap/config.yaml", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Shell.Path != "/bin/zsh" {
		t.Errorf("shell path = %q", cfg.Shell.Path)
	}
	if cfg.Shell.Sentinel != "myprompt" {
		t.Errorf("sentinel = %q", cfg.Shell.Sentinel)
	}
	if cfg.Shell.Rows != 40 || cfg.Shell.Cols != 160 {
		t.Errorf("size = %dx%d, want 40x160", cfg.Shell.Rows, cfg.Shell.Cols)
	}
	if cfg.Session.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %v, want 250ms", cfg.Session.PollInterval)
	}
	if cfg.Session.CwdProbe {
		t.Error("cwd probe should be off")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
	if !cfg.History.Enabled || cfg.History.Retention != 7 {
		t.Errorf("history = %+v", cfg.History)
	}
	if len(cfg.History.AllowTools) != 2 || cfg.History.AllowTools[0] != "nmap*" {
		t.Errorf("allow tools = %v", cfg.History.AllowTools)
	}
	if !cfg.Recording.Enabled || cfg.Recording.Path != "/var/rec" {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if len(cfg.PromptDetection.BoundaryPatterns) != 1 {
		t.Errorf("boundary patterns = %v", cfg.PromptDetection.BoundaryPatterns)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	fs := fakefs.New()
	fs.AddFile("/cfg.yaml", []byte("shell: [not a map"), 0o644)

	if _, err := Load("/cfg.yaml", fs); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_InvalidLevelRejected(t *testing.T) {
	fs := fakefs.New()
	fs.AddFile("/cfg.yaml", []byte("logging:\n  level: loud\n"), 0o644)

	if _, err := Load("/cfg.yaml", fs); err == nil {
		t.Error("expected validation error for unknown level")
	}
}

// ---------------------------------------------------------------------------
// 3. Validate
// ---------------------------------------------------------------------------

func TestValidate_FillsPollInterval(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("poll interval = %v, want 100ms", cfg.Session.PollInterval)
	}
}

func TestValidate_NegativeRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Retention = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative retention")
	}
}

// ---------------------------------------------------------------------------
// 4. Save
// ---------------------------------------------------------------------------

func TestSave_RoundTrip(t *testing.T) {
	fs := fakefs.New()
	cfg := DefaultConfig()
	cfg.Shell.Sentinel = "roundtrip"
	cfg.History.BlockTools = []string{"vault*"}

	if err := Save(cfg, "/home/testuser/.config/termtap/config.yaml", fs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load("/home/testuser/.config/termtap/config.yaml", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Shell.Sentinel != "roundtrip" {
		t.Errorf("sentinel = %q, want roundtrip", loaded.Shell.Sentinel)
	}
	if len(loaded.History.BlockTools) != 1 || loaded.History.BlockTools[0] != "vault*" {
		t.Errorf("block tools = %v", loaded.History.BlockTools)
	}
}

// ---------------------------------------------------------------------------
// 5. DefaultConfigPath
// ---------------------------------------------------------------------------

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	path := DefaultConfigPath()
	if !strings.HasSuffix(path, "termtap/config.yaml") {
		t.Errorf("path = %q", path)
	}
	if !strings.HasPrefix(path, "/custom/config") {
		t.Errorf("path = %q, should honor XDG_CONFIG_HOME", path)
	}
}

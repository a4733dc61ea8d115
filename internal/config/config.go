// Package config handles configuration parsing for termtap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acolita/termtap/internal/ports"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/termtap/config.yaml or ~/.config/termtap/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "termtap", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Shell           ShellConfig     `yaml:"shell"`
	Session         SessionConfig   `yaml:"session"`
	Logging         LoggingConfig   `yaml:"logging"`
	History         HistoryConfig   `yaml:"history"`
	Recording       RecordingConfig `yaml:"recording"`
	PromptDetection PromptConfig    `yaml:"prompt_detection"`
}

// ShellConfig defines how the wrapped shell is spawned.
type ShellConfig struct {
	Path     string `yaml:"path"`      // custom shell path (overrides detection)
	Sentinel string `yaml:"sentinel"`  // prompt sentinel token
	Term     string `yaml:"term"`      // TERM value for the shell
	Rows     uint16 `yaml:"rows"`      // initial terminal rows
	Cols     uint16 `yaml:"cols"`      // initial terminal columns
	SourceRC bool   `yaml:"source_rc"` // source .bashrc/.zshrc (default: false, keeps the sentinel prompt)
}

// SessionConfig tunes the session controller.
type SessionConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // quiescence poll window
	CwdProbe     bool          `yaml:"cwd_probe"`     // track the shell's working directory
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// HistoryConfig defines per-command output logging.
type HistoryConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Directory  string   `yaml:"directory"`   // where command logs are written
	AllowTools []string `yaml:"allow_tools"` // glob patterns; empty means log everything
	BlockTools []string `yaml:"block_tools"` // glob patterns for commands never logged
	Retention  int      `yaml:"retention"`   // days to keep logs; 0 disables pruning
}

// RecordingConfig defines asciicast session recording.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // directory to store recordings
}

// PromptConfig defines extra prompt patterns layered over the built-ins.
type PromptConfig struct {
	BoundaryPatterns []string `yaml:"boundary_patterns"` // extra shell prompt regexes
	PasswordPatterns []string `yaml:"password_patterns"` // extra password prompt regexes
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			PollInterval: 100 * time.Millisecond,
			CwdProbe:     true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
		History: HistoryConfig{
			Retention: 30,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. An optional FileSystem can be passed for testing; if omitted,
// the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills gaps with usable values.
func (c *Config) Validate() error {
	if c.Session.PollInterval <= 0 {
		c.Session.PollInterval = 100 * time.Millisecond
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative, got %d", c.History.Retention)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// Save writes the configuration to a YAML file. An optional FileSystem can
// be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		return fsys[0].WriteFile(path, data, 0644)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

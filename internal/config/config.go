// Package config loads the ptyd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/acolita/ptyd/internal/adapters/realfs"
	"github.com/acolita/ptyd/internal/ports"
)

// DefaultConfigPath returns $XDG_CONFIG_HOME/ptyd/config.yaml, or
// ~/.config/ptyd/config.yaml when XDG_CONFIG_HOME is unset.
func DefaultConfigPath(fsys ...ports.FileSystem) string {
	f := pick(fsys)
	dir := f.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := f.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ptyd", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Sudo      SudoConfig      `yaml:"sudo"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Logging   LoggingConfig   `yaml:"logging"`
	Recording RecordingConfig `yaml:"recording"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EngineConfig controls how sessions are spawned and drained.
type EngineConfig struct {
	Shell         string            `yaml:"shell"`           // empty: $SHELL, then bash/zsh/sh
	Cwd           string            `yaml:"cwd"`             // empty: home directory
	Cols          uint16            `yaml:"cols"`
	Rows          uint16            `yaml:"rows"`
	MaxSessions   int               `yaml:"max_sessions"`
	ReadChunkSize int               `yaml:"read_chunk_size"`
	PollInterval  time.Duration     `yaml:"poll_interval"`
	KillGrace     time.Duration     `yaml:"kill_grace"`
	CloseTimeout  time.Duration     `yaml:"close_timeout"`
	WriteTimeout  time.Duration     `yaml:"write_timeout"`
	AllowedShells []string          `yaml:"allowed_shells"` // doublestar globs; empty allows any
	Env           map[string]string `yaml:"env"`
	Prompts       []PromptConfig    `yaml:"prompts"` // checked before the built-in prompts
}

// PromptConfig describes an extra input prompt to recognise.
type PromptConfig struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
	Kind  string `yaml:"kind"` // password, confirmation, pager or text
	Mask  bool   `yaml:"mask"`
}

// SudoConfig controls privileged command execution.
type SudoConfig struct {
	Binary          string        `yaml:"binary"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	MaxFailures     int           `yaml:"max_failures"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
	UseKeyring      bool          `yaml:"use_keyring"`
	Blocklist       []string      `yaml:"blocklist"` // regex; nil uses the built-in list
	Allowlist       []string      `yaml:"allowlist"` // regex; if set, only these may run
}

// ReaperConfig controls idle session eviction.
type ReaperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxIdle  time.Duration `yaml:"max_idle"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // redact sensitive attributes
}

// RecordingConfig defines session recording settings.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. "127.0.0.1:9464"; empty disables
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Cols:          80,
			Rows:          24,
			MaxSessions:   10,
			ReadChunkSize: 4096,
			PollInterval:  10 * time.Millisecond,
			KillGrace:     100 * time.Millisecond,
			CloseTimeout:  2 * time.Second,
			WriteTimeout:  5 * time.Second,
		},
		Sudo: SudoConfig{
			Binary:          "sudo",
			Timeout:         60 * time.Second,
			CacheTTL:        5 * time.Minute,
			MaxFailures:     3,
			LockoutDuration: 15 * time.Minute,
		},
		Reaper: ReaperConfig{
			Enabled:  true,
			Interval: time.Minute,
			MaxIdle:  30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults. An optional FileSystem can be passed for testing.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := pick(fsys).ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate fills zero values with defaults and rejects settings that can
// never work.
func (c *Config) Validate() error {
	def := DefaultConfig()
	e := &c.Engine
	if e.Cols == 0 {
		e.Cols = def.Engine.Cols
	}
	if e.Rows == 0 {
		e.Rows = def.Engine.Rows
	}
	if e.MaxSessions <= 0 {
		e.MaxSessions = def.Engine.MaxSessions
	}
	if e.ReadChunkSize <= 0 {
		e.ReadChunkSize = def.Engine.ReadChunkSize
	}
	if e.PollInterval <= 0 {
		e.PollInterval = def.Engine.PollInterval
	}
	if e.KillGrace <= 0 {
		e.KillGrace = def.Engine.KillGrace
	}
	if e.CloseTimeout <= 0 {
		e.CloseTimeout = def.Engine.CloseTimeout
	}
	if e.WriteTimeout <= 0 {
		e.WriteTimeout = def.Engine.WriteTimeout
	}
	for _, g := range e.AllowedShells {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("engine.allowed_shells: invalid pattern %q", g)
		}
	}
	for i, p := range e.Prompts {
		if p.Name == "" {
			return fmt.Errorf("engine.prompts[%d]: name is required", i)
		}
		if _, err := regexp.Compile(p.Regex); err != nil {
			return fmt.Errorf("engine.prompts[%d]: %w", i, err)
		}
	}
	for k := range e.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return fmt.Errorf("engine.env: invalid variable name %q", k)
		}
	}

	s := &c.Sudo
	if s.Binary == "" {
		s.Binary = def.Sudo.Binary
	}
	if s.Timeout <= 0 {
		s.Timeout = def.Sudo.Timeout
	}
	if s.MaxFailures <= 0 {
		s.MaxFailures = def.Sudo.MaxFailures
	}
	if s.LockoutDuration <= 0 {
		s.LockoutDuration = def.Sudo.LockoutDuration
	}
	for _, p := range append(append([]string(nil), s.Blocklist...), s.Allowlist...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("sudo: invalid command pattern %q: %w", p, err)
		}
	}

	if c.Reaper.Interval <= 0 {
		c.Reaper.Interval = def.Reaper.Interval
	}
	if c.Reaper.MaxIdle < 0 {
		return fmt.Errorf("reaper.max_idle must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}

	if c.Recording.Enabled && c.Recording.Path == "" {
		return fmt.Errorf("recording.path is required when recording is enabled")
	}
	return nil
}

// ShellAllowed reports whether shell matches engine.allowed_shells. An
// empty list allows every shell.
func (c *Config) ShellAllowed(shell string) bool {
	if len(c.Engine.AllowedShells) == 0 {
		return true
	}
	for _, g := range c.Engine.AllowedShells {
		if ok, _ := doublestar.Match(g, shell); ok {
			return true
		}
	}
	return false
}

// Save writes the configuration as YAML, creating the parent directory.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	f := pick(fsys)
	if err := f.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return f.WriteFile(path, data, 0o644)
}

func pick(fsys []ports.FileSystem) ports.FileSystem {
	if len(fsys) > 0 && fsys[0] != nil {
		return fsys[0]
	}
	return realfs.New()
}

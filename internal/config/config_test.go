package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acolita/ptyd/internal/testing/fakes/fakefs"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.Cols != 80 || cfg.Engine.Rows != 24 {
		t.Errorf("window = %dx%d, want 80x24", cfg.Engine.Cols, cfg.Engine.Rows)
	}
	if cfg.Engine.MaxSessions != 10 {
		t.Errorf("MaxSessions = %d, want 10", cfg.Engine.MaxSessions)
	}
	if cfg.Engine.ReadChunkSize != 4096 {
		t.Errorf("ReadChunkSize = %d, want 4096", cfg.Engine.ReadChunkSize)
	}
	if cfg.Engine.PollInterval != 10*time.Millisecond {
		t.Errorf("PollInterval = %v, want 10ms", cfg.Engine.PollInterval)
	}
	if cfg.Sudo.Timeout != 60*time.Second {
		t.Errorf("Sudo.Timeout = %v, want 60s", cfg.Sudo.Timeout)
	}
	if cfg.Sudo.CacheTTL != 5*time.Minute {
		t.Errorf("Sudo.CacheTTL = %v, want 5m", cfg.Sudo.CacheTTL)
	}
	if !cfg.Reaper.Enabled || cfg.Reaper.MaxIdle != 30*time.Minute {
		t.Errorf("Reaper = %+v", cfg.Reaper)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.Sanitize {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Engine.MaxSessions != 10 {
		t.Errorf("MaxSessions = %d, want default", cfg.Engine.MaxSessions)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml", fakefs.New())
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if cfg.Sudo.Binary != "sudo" {
		t.Errorf("Sudo.Binary = %q, want default", cfg.Sudo.Binary)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	fs := fakefs.New()
	fs.WriteFile("/etc/ptyd.yaml", []byte(":::invalid:::yaml{{{"), 0o644)
	if _, err := Load("/etc/ptyd.yaml", fs); err == nil {
		t.Fatal("Load(invalid) expected error")
	}
}

func TestLoadValidConfig(t *testing.T) {
	fs := fakefs.New()
	fs.WriteFile("/etc/ptyd.yaml", []byte(`
engine:
  shell: /bin/zsh
  cols: 120
  rows: 40
  max_sessions: 3
  poll_interval: 25ms
  kill_grace: 250ms
  allowed_shells: ["/bin/*", "/usr/**/bash"]
  env:
    EDITOR: vi
sudo:
  timeout: 10s
  use_keyring: true
  blocklist: ["^reboot"]
reaper:
  enabled: false
  max_idle: 1h
recording:
  enabled: true
  path: /var/lib/ptyd/rec
metrics:
  listen: 127.0.0.1:9464
`), 0o644)

	cfg, err := Load("/etc/ptyd.yaml", fs)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	e := cfg.Engine
	if e.Shell != "/bin/zsh" || e.Cols != 120 || e.Rows != 40 || e.MaxSessions != 3 {
		t.Errorf("Engine = %+v", e)
	}
	if e.PollInterval != 25*time.Millisecond || e.KillGrace != 250*time.Millisecond {
		t.Errorf("durations = %v, %v", e.PollInterval, e.KillGrace)
	}
	if e.ReadChunkSize != 4096 {
		t.Errorf("ReadChunkSize = %d, want default kept", e.ReadChunkSize)
	}
	if e.Env["EDITOR"] != "vi" {
		t.Errorf("Env = %v", e.Env)
	}
	if cfg.Sudo.Timeout != 10*time.Second || !cfg.Sudo.UseKeyring || cfg.Sudo.Blocklist[0] != "^reboot" {
		t.Errorf("Sudo = %+v", cfg.Sudo)
	}
	if cfg.Sudo.Binary != "sudo" {
		t.Errorf("Sudo.Binary = %q, want default kept", cfg.Sudo.Binary)
	}
	if cfg.Reaper.Enabled || cfg.Reaper.MaxIdle != time.Hour {
		t.Errorf("Reaper = %+v", cfg.Reaper)
	}
	if !cfg.Recording.Enabled || cfg.Recording.Path != "/var/lib/ptyd/rec" {
		t.Errorf("Recording = %+v", cfg.Recording)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("Metrics.Listen = %q", cfg.Metrics.Listen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad glob", func(c *Config) { c.Engine.AllowedShells = []string{"/bin/[a"} }, "allowed_shells"},
		{"bad env key", func(c *Config) { c.Engine.Env = map[string]string{"A=B": "x"} }, "engine.env"},
		{"bad regex", func(c *Config) { c.Sudo.Blocklist = []string{"("} }, "invalid command pattern"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"negative idle", func(c *Config) { c.Reaper.MaxIdle = -time.Second }, "max_idle"},
		{"prompt without name", func(c *Config) { c.Engine.Prompts = []PromptConfig{{Regex: "x"}} }, "name is required"},
		{"bad prompt regex", func(c *Config) { c.Engine.Prompts = []PromptConfig{{Name: "p", Regex: "("}} }, "engine.prompts[0]"},
		{"recording without path", func(c *Config) { c.Recording.Enabled = true }, "recording.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Engine.MaxSessions != 10 || cfg.Engine.ReadChunkSize != 4096 || cfg.Sudo.Timeout != time.Minute {
		t.Errorf("zero values not filled: %+v %+v", cfg.Engine, cfg.Sudo)
	}
	if cfg.Engine.CloseTimeout != 2*time.Second || cfg.Reaper.Interval != time.Minute {
		t.Errorf("zero durations not filled: %+v %+v", cfg.Engine, cfg.Reaper)
	}
}

func TestShellAllowed(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.ShellAllowed("/anything") {
		t.Error("empty allowlist should allow every shell")
	}
	cfg.Engine.AllowedShells = []string{"/bin/*", "/usr/**/zsh"}
	for shell, want := range map[string]bool{
		"/bin/bash":               true,
		"/usr/local/bin/zsh":      true,
		"/usr/bin/fish":           false,
		"/home/me/evil/bin/shell": false,
	} {
		if got := cfg.ShellAllowed(shell); got != want {
			t.Errorf("ShellAllowed(%q) = %v, want %v", shell, got, want)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	fs := fakefs.New()
	cfg := DefaultConfig()
	cfg.Engine.Shell = "/bin/sh"
	cfg.Sudo.LockoutDuration = 90 * time.Second

	if err := Save(cfg, "/home/test/.config/ptyd/config.yaml", fs); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load("/home/test/.config/ptyd/config.yaml", fs)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Engine.Shell != "/bin/sh" || got.Sudo.LockoutDuration != 90*time.Second {
		t.Errorf("round trip = %+v %+v", got.Engine, got.Sudo)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	fs := fakefs.New()
	if got := DefaultConfigPath(fs); got != "/home/test/.config/ptyd/config.yaml" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
	fs.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultConfigPath(fs); got != "/xdg/ptyd/config.yaml" {
		t.Errorf("DefaultConfigPath() with XDG = %q", got)
	}
}

func TestNewWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "engine:\n  max_sessions: 4\n")

	w, err := NewWatcher(path, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	if got := w.Config().Engine.MaxSessions; got != 4 {
		t.Errorf("MaxSessions = %d, want 4", got)
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	if _, err := NewWatcher("/nonexistent/config.yaml", nil, nil); err == nil {
		t.Fatal("NewWatcher(missing dir) expected error")
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "engine:\n  max_sessions: 4\n")

	var mu sync.Mutex
	var changed *Config
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		changed = cfg
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "engine:\n  max_sessions: 7\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		c := changed
		mu.Unlock()
		if c != nil && c.Engine.MaxSessions == 7 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if got := w.Config().Engine.MaxSessions; got != 7 {
		t.Errorf("MaxSessions after reload = %d, want 7", got)
	}
}

func TestWatcherSkipsInvalidRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "engine:\n  max_sessions: 4\n")

	var mu sync.Mutex
	calls := 0
	w, err := NewWatcher(path, func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "logging:\n  level: shouting\n")
	time.Sleep(500 * time.Millisecond)

	if got := w.Config().Engine.MaxSessions; got != 4 {
		t.Errorf("MaxSessions = %d, want 4 preserved", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("onChange called %d times for an invalid revision", calls)
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "")

	w, err := NewWatcher(path, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootOptions_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "engine:\n  max_sessions: 3\nlogging:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := (&rootOptions{configPath: path}).load()
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Engine.MaxSessions != 3 || cfg.Logging.Level != "warn" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg, err = (&rootOptions{configPath: path, debug: true}).load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("--debug not applied: %q", cfg.Logging.Level)
	}
}

func TestRootOptions_LoadMissingFile(t *testing.T) {
	cfg, err := (&rootOptions{configPath: filepath.Join(t.TempDir(), "none.yaml")}).load()
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Engine.Cols != 80 || cfg.Engine.Rows != 24 {
		t.Errorf("defaults not applied: %dx%d", cfg.Engine.Cols, cfg.Engine.Rows)
	}
}

func TestRootOptions_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (&rootOptions{configPath: path}).load(); err == nil {
		t.Error("load() accepted an unknown log level")
	}
}

package session

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/acolita/ptyd/internal/ports"
)

// Config describes the shell a session runs. It is copied when the session
// is created; resizing changes the live window, not the Config.
type Config struct {
	Shell string
	Cwd   string
	Cols  uint16
	Rows  uint16
	Env   map[string]string
}

// resolve fills empty fields: $SHELL or the first existing fallback shell,
// the home directory (or /tmp), and an 80x24 window.
func (c Config) resolve(fsys ports.FileSystem) Config {
	out := c
	out.Env = maps.Clone(c.Env)

	if out.Shell == "" {
		out.Shell = fsys.Getenv("SHELL")
	}
	if out.Shell == "" {
		for _, sh := range fallbackShells {
			if _, err := fsys.Stat(sh); err == nil {
				out.Shell = sh
				break
			}
		}
	}
	if out.Shell == "" {
		out.Shell = "/bin/sh"
	}

	if out.Cwd == "" {
		if home, err := fsys.UserHomeDir(); err == nil && home != "" {
			out.Cwd = home
		} else {
			out.Cwd = os.TempDir()
		}
	}

	if out.Cols == 0 {
		out.Cols = DefaultCols
	}
	if out.Rows == 0 {
		out.Rows = DefaultRows
	}
	return out
}

func (c Config) validate(fsys ports.FileSystem) error {
	fi, err := fsys.Stat(c.Cwd)
	if err != nil {
		return fmt.Errorf("%w: working directory %s: %v", ErrInvalidInput, c.Cwd, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: working directory %s is not a directory", ErrInvalidInput, c.Cwd)
	}
	for k := range c.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return fmt.Errorf("%w: environment key %q", ErrInvalidInput, k)
		}
	}
	return nil
}

// environ builds the child environment: base, then the terminal variables,
// then extra. Later entries win; the result has one entry per key.
func environ(base []string, cwd string, extra map[string]string) []string {
	vars := make(map[string]string, len(base)+len(extra)+3)
	order := make([]string, 0, len(base)+len(extra)+3)
	set := func(k, v string) {
		if _, ok := vars[k]; !ok {
			order = append(order, k)
		}
		vars[k] = v
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		set(k, v)
	}
	set("TERM", "xterm-256color")
	set("COLORTERM", "truecolor")
	set("PWD", cwd)
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		set(k, extra[k])
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+vars[k])
	}
	return env
}

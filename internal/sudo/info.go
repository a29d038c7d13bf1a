package sudo

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Info describes the sudo binary on this host.
type Info struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version"`
}

// Available reports whether `binary --version` runs successfully.
func Available(ctx context.Context, binary string) bool {
	return GetInfo(ctx, binary).Available
}

// GetInfo runs `binary --version` and keeps its first line.
func GetInfo(ctx context.Context, binary string) Info {
	info := Info{Version: "unknown"}
	path, err := exec.LookPath(binary)
	if err != nil {
		return info
	}
	info.Path = path

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return info
	}
	info.Available = true
	if first, _, _ := strings.Cut(string(out), "\n"); strings.TrimSpace(first) != "" {
		info.Version = strings.TrimSpace(first)
	}
	return info
}

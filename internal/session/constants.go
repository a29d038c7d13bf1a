package session

import "time"

// Engine defaults, used when the corresponding config value is zero.
const (
	DefaultCols          = 80
	DefaultRows          = 24
	DefaultReadChunkSize = 4096
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultKillGrace     = 100 * time.Millisecond
	DefaultCloseTimeout  = 2 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultMaxSessions   = 10
)

// Removal reasons, also used as the metrics label.
const (
	reasonKilled   = "killed"
	reasonClosed   = "closed"
	reasonIdle     = "idle"
	reasonExited   = "exited"
	reasonShutdown = "shutdown"
)

var shellArgs = []string{"-i", "-l"}

var fallbackShells = []string{"/bin/bash", "/bin/zsh", "/bin/sh"}

// Package bridge serves the session engine over line-delimited JSON: one
// request object per input line, one response object per output line.
package bridge

import (
	"encoding/json"

	"github.com/acolita/ptyd/internal/session"
	"github.com/acolita/ptyd/internal/sudo"
)

// Request is one input line. ID is echoed verbatim and may be a number or
// a string.
type Request struct {
	ID          json.RawMessage   `json:"id,omitempty"`
	Command     string            `json:"command"`
	SessionID   string            `json:"session_id,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Shell       string            `json:"shell,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Data        string            `json:"data,omitempty"`
	CommandText string            `json:"command_text,omitempty"`
	Password    string            `json:"password,omitempty"`
	Cols        uint16            `json:"cols,omitempty"`
	Rows        uint16            `json:"rows,omitempty"`
	FromIndex   *int              `json:"from_index,omitempty"`
	MaxAge      *float64          `json:"max_age,omitempty"` // seconds
}

// Response is one output line.
type Response struct {
	ID           json.RawMessage   `json:"id"`
	Success      bool              `json:"success"`
	Output       *string           `json:"output,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	Error        string            `json:"error,omitempty"`
	NextIndex    *int              `json:"next_index,omitempty"`
	Status       *session.Status   `json:"status,omitempty"`
	Sessions     *[]session.Status `json:"sessions,omitempty"`
	Removed      *int              `json:"removed,omitempty"`
	ExitCode     *int              `json:"exit_code,omitempty"`
	TimedOut     bool              `json:"timed_out,omitempty"`
	SudoError    string            `json:"sudo_error,omitempty"`
	Hint         string            `json:"hint,omitempty"`
	RequiresSudo *bool             `json:"requires_sudo,omitempty"`
	Prediction   *sudo.Prediction  `json:"prediction,omitempty"`
}

// Banner is written once before any request is read.
type Banner struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
	PID     int    `json:"pid"`
}

func ptr[T any](v T) *T { return &v }

var nullID = json.RawMessage("null")

package session

import (
	"time"

	"github.com/acolita/ptyd/internal/prompt"
)

// Status is a read-only snapshot of a session.
type Status struct {
	ID           string            `json:"id"`
	Active       bool              `json:"active"`
	Executing    bool              `json:"executing"`
	LastActivity int64             `json:"last_activity"`
	BufferSize   int               `json:"buffer_size"`
	Cwd          string            `json:"cwd"`
	PID          int               `json:"pid"`
	Shell        string            `json:"shell"`
	Cols         uint16            `json:"cols"`
	Rows         uint16            `json:"rows"`
	CreatedAt    time.Time         `json:"created_at"`
	ExitCode     *int              `json:"exit_code,omitempty"`
	Prompt       *prompt.Detection `json:"prompt,omitempty"` // set by Manager when input is awaited
}

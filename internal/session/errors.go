package session

import (
	"errors"

	"github.com/acolita/ptyd/internal/pty"
)

// sessionError lets ErrSessionInactive match ErrSessionNotFound under
// errors.Is while keeping its own message.
type sessionError struct {
	msg    string
	parent error
}

func (e *sessionError) Error() string { return e.msg }
func (e *sessionError) Unwrap() error { return e.parent }

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionInactive   error = &sessionError{msg: "session inactive", parent: ErrSessionNotFound}
	ErrSessionExists     = errors.New("session already exists")
	ErrAllocationFailure = errors.New("allocation failure")
	ErrIOFailure         = errors.New("io failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrShellNotFound     = pty.ErrNotFound
	ErrSudoUnavailable   = errors.New("sudo is not configured")
)

package sudo

import "errors"

var (
	ErrTimeout          = errors.New("sudo command timed out")
	ErrLocked           = errors.New("sudo locked after repeated authentication failures")
	ErrBlocked          = errors.New("command blocked by security policy")
	ErrPasswordRequired = errors.New("sudo password required")
	ErrAuthFailed       = errors.New("sudo authentication failed")
	ErrEmptyCommand     = errors.New("empty command")
)

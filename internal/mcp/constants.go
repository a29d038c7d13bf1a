package mcp

// Common error messages and descriptions used across MCP tools.
const (
	descSessionID = "The session ID returned by pty_session_create"

	errSessionIDRequired = "session_id is required"
	errCommandRequired   = "command is required"

	// Cursor modes reported by pty_read_output.
	cursorModeServer = "server"
	cursorModeCaller = "caller"
)

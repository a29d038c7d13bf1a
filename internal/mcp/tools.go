package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acolita/ptyd/internal/logging"
	"github.com/acolita/ptyd/internal/security"
	"github.com/acolita/ptyd/internal/session"
	"github.com/acolita/ptyd/internal/sudo"
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(ptySessionCreateTool(), s.handleSessionCreate)
	s.mcpServer.AddTool(ptyWriteTool(), s.handleWrite)
	s.mcpServer.AddTool(ptyRunCommandTool(), s.handleRunCommand)
	s.mcpServer.AddTool(ptyReadOutputTool(), s.handleReadOutput)
	s.mcpServer.AddTool(ptyResizeTool(), s.handleResize)
	s.mcpServer.AddTool(ptyClearTool(), s.handleClear)
	s.mcpServer.AddTool(ptyKillTool(), s.handleKill)
	s.mcpServer.AddTool(ptyCloseTool(), s.handleClose)
	s.mcpServer.AddTool(ptyStatusTool(), s.handleStatus)
	s.mcpServer.AddTool(ptyListTool(), s.handleList)
	s.mcpServer.AddTool(ptySudoTool(), s.handleSudo)
	s.mcpServer.AddTool(ptyRequiresSudoTool(), s.handleRequiresSudo)
}

// Tool definitions

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description(descSessionID),
	)
}

func ptySessionCreateTool() mcp.Tool {
	return mcp.NewTool("pty_session_create",
		mcp.WithDescription("Start a shell in a new pseudo-terminal session"),
		mcp.WithString("session_id",
			mcp.Description("Optional caller-chosen session ID (default: random UUID)"),
		),
		mcp.WithString("shell",
			mcp.Description("Shell executable (default: configured shell or $SHELL)"),
		),
		mcp.WithString("cwd",
			mcp.Description("Initial working directory (default: home directory)"),
		),
		mcp.WithNumber("cols",
			mcp.Description("Terminal width in columns (default: 80)"),
		),
		mcp.WithNumber("rows",
			mcp.Description("Terminal height in rows (default: 24)"),
		),
		mcp.WithObject("env",
			mcp.Description("Extra environment variables as string values"),
		),
	)
}

func ptyWriteTool() mcp.Tool {
	return mcp.NewTool("pty_write",
		mcp.WithDescription("Write raw input to a session, for example keystrokes or control characters"),
		sessionIDParam(),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Bytes to write; no newline is appended"),
		),
	)
}

func ptyRunCommandTool() mcp.Tool {
	return mcp.NewTool("pty_run_command",
		mcp.WithDescription("Type a command line into the session followed by Enter"),
		sessionIDParam(),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to run"),
		),
	)
}

func ptyReadOutputTool() mcp.Tool {
	return mcp.NewTool("pty_read_output",
		mcp.WithDescription("Read output produced since the last read, or since from_index when given"),
		sessionIDParam(),
		mcp.WithNumber("from_index",
			mcp.Description("Character offset to read from; omit to continue from the previous read"),
		),
	)
}

func ptyResizeTool() mcp.Tool {
	return mcp.NewTool("pty_resize",
		mcp.WithDescription("Change the terminal size of a session"),
		sessionIDParam(),
		mcp.WithNumber("cols", mcp.Required(), mcp.Description("Columns")),
		mcp.WithNumber("rows", mcp.Required(), mcp.Description("Rows")),
	)
}

func ptyClearTool() mcp.Tool {
	return mcp.NewTool("pty_clear",
		mcp.WithDescription("Discard the buffered output of a session"),
		sessionIDParam(),
	)
}

func ptyKillTool() mcp.Tool {
	return mcp.NewTool("pty_kill",
		mcp.WithDescription("Forcefully terminate a session and remove it"),
		sessionIDParam(),
	)
}

func ptyCloseTool() mcp.Tool {
	return mcp.NewTool("pty_close",
		mcp.WithDescription("Gracefully close a session and remove it"),
		sessionIDParam(),
	)
}

func ptyStatusTool() mcp.Tool {
	return mcp.NewTool("pty_status",
		mcp.WithDescription("Report pid, size, activity and exit code of a session"),
		sessionIDParam(),
	)
}

func ptyListTool() mcp.Tool {
	return mcp.NewTool("pty_list",
		mcp.WithDescription("List all sessions"),
		mcp.WithBoolean("active_only",
			mcp.Description("Only return IDs of active sessions (default: false)"),
		),
	)
}

func ptySudoTool() mcp.Tool {
	return mcp.NewTool("pty_sudo",
		mcp.WithDescription("Run a command with sudo in the session's working directory"),
		sessionIDParam(),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to run; a leading 'sudo' is stripped"),
		),
		mcp.WithString("password",
			mcp.Description("Sudo password; omit to use a cached or stored one"),
		),
	)
}

func ptyRequiresSudoTool() mcp.Tool {
	return mcp.NewTool("pty_requires_sudo",
		mcp.WithDescription("Predict whether a command needs elevated privileges"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to inspect"),
		),
	)
}

// Tool handlers

func (s *Server) handleSessionCreate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	env, err := parseEnv(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cols, rows, err := parseSize(req, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.mgr.Create(session.CreateOptions{
		ID:    mcp.ParseString(req, "session_id", ""),
		Shell: mcp.ParseString(req, "shell", ""),
		Cwd:   mcp.ParseString(req, "cwd", ""),
		Cols:  cols,
		Rows:  rows,
		Env:   env,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info("session created via mcp", slog.String("session_id", sess.ID))
	return jsonResult(map[string]any{
		"session_id": sess.ID,
		"status":     sess.Status(),
	})
}

func (s *Server) handleWrite(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	data := mcp.ParseString(req, "data", "")
	if err := s.mgr.Write(sessionID, []byte(data)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"written": len(data)})
}

func (s *Server) handleRunCommand(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	command := mcp.ParseString(req, "command", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	if command == "" {
		return mcp.NewToolResultError(errCommandRequired), nil
	}

	s.logger.Debug("running command",
		slog.String("session_id", sessionID),
		slog.String("command", logging.Truncate(command, 200)),
	)
	if err := s.mgr.RunCommand(sessionID, command); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"sent": true})
}

func (s *Server) handleReadOutput(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}

	result := map[string]any{}
	if from := mcp.ParseInt(req, "from_index", -1); from >= 0 {
		out, next, err := s.mgr.IncrementalOutput(sessionID, from)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result["output"] = out
		result["next_index"] = next
		result["cursor"] = cursorModeCaller
	} else {
		out, err := s.mgr.NextOutput(sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result["output"] = out
		result["cursor"] = cursorModeServer
	}

	if st, err := s.mgr.Status(sessionID); err == nil {
		result["active"] = st.Active
		if st.Prompt != nil {
			result["prompt"] = st.Prompt
		}
	}
	return jsonResult(result)
}

func (s *Server) handleResize(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	cols, rows, err := parseSize(req, -1)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.mgr.Resize(sessionID, cols, rows); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"cols": cols, "rows": rows})
}

func (s *Server) handleClear(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.simple(req, s.mgr.Clear, "cleared")
}

func (s *Server) handleKill(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.simple(req, s.mgr.Kill, "killed")
}

func (s *Server) handleClose(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.simple(req, s.mgr.Close, "closed")
}

// simple runs a session operation that only reports success.
func (s *Server) simple(req mcp.CallToolRequest, op func(string) error, status string) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	if err := op(sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"session_id": sessionID,
		"status":     status,
	})
}

func (s *Server) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	st, err := s.mgr.Status(sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) handleList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if mcp.ParseBoolean(req, "active_only", false) {
		return jsonResult(map[string]any{"sessions": s.mgr.ListActive()})
	}
	return jsonResult(map[string]any{"sessions": s.mgr.List()})
}

func (s *Server) handleSudo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "session_id", "")
	command := mcp.ParseString(req, "command", "")
	if sessionID == "" {
		return mcp.NewToolResultError(errSessionIDRequired), nil
	}
	if command == "" {
		return mcp.NewToolResultError(errCommandRequired), nil
	}

	var pw []byte
	if p := mcp.ParseString(req, "password", ""); p != "" {
		pw = []byte(p)
		defer security.WipeBytes(pw)
	}

	res, err := s.mgr.RunSudo(ctx, sessionID, command, pw)
	result := map[string]any{"session_id": sessionID}
	if res != nil {
		result["output"] = res.Combined()
		result["exit_code"] = res.ExitCode
		result["timed_out"] = res.TimedOut
		result["duration_ms"] = res.Duration.Milliseconds()
		if res.ErrorType != sudo.ErrorNone {
			result["sudo_error"] = res.ErrorType.String()
			result["hint"] = sudo.SuggestFix(res.ErrorType)
		}
	}
	if err != nil {
		if errors.Is(err, sudo.ErrPasswordRequired) {
			result["status"] = "awaiting_password"
			result["hint"] = sudo.SuggestFix(sudo.ErrorPasswordRequired)
			return jsonResult(result)
		}
		if res == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result["error"] = err.Error()
	}
	result["success"] = res.Success
	return jsonResult(result)
}

func (s *Server) handleRequiresSudo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := mcp.ParseString(req, "command", "")
	if command == "" {
		return mcp.NewToolResultError(errCommandRequired), nil
	}
	return jsonResult(map[string]any{
		"requires_sudo": sudo.RequiresPrivilege(command),
		"prediction":    s.detector.Predict(command),
	})
}

// parseSize reads cols and rows. Missing values fall back to def, which
// callers set to 0 (use defaults) or -1 (required).
func parseSize(req mcp.CallToolRequest, def int) (uint16, uint16, error) {
	cols := mcp.ParseInt(req, "cols", def)
	rows := mcp.ParseInt(req, "rows", def)
	for name, v := range map[string]int{"cols": cols, "rows": rows} {
		if v == -1 {
			return 0, 0, fmt.Errorf("%w: %s is required", session.ErrInvalidInput, name)
		}
		if v < 0 || v > 0xffff {
			return 0, 0, fmt.Errorf("%w: %s out of range", session.ErrInvalidInput, name)
		}
	}
	return uint16(cols), uint16(rows), nil
}

func parseEnv(req mcp.CallToolRequest) (map[string]string, error) {
	raw, ok := req.GetArguments()["env"]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: env must be an object", session.ErrInvalidInput)
	}
	env := make(map[string]string, len(obj))
	for k, v := range obj {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: env %s must be a string", session.ErrInvalidInput, k)
		}
		env[k] = str
	}
	return env, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

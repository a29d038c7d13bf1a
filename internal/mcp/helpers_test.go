package mcp

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/acolita/ptyd/internal/config"
	"github.com/acolita/ptyd/internal/session"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func requireShell(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a real shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Engine.Shell = "/bin/sh"
	cfg.Engine.Cwd = t.TempDir()
	cfg.Engine.Env = map[string]string{"PS1": "$ "}
	cfg.Engine.KillGrace = 50 * time.Millisecond
	mgr := session.NewManager(cfg)
	t.Cleanup(mgr.CloseAll)
	return NewServer(mgr, WithVersion("test"))
}

func makeRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	tc, ok := mcpgo.AsTextContent(result.Content[0])
	if !ok {
		return ""
	}
	return tc.Text
}

// decode unmarshals a successful tool result.
func decode(t *testing.T) func(result *mcpgo.CallToolResult, err error) map[string]any {
	t.Helper()
	return func(result *mcpgo.CallToolResult, err error) map[string]any {
		t.Helper()
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if result.IsError {
			t.Fatalf("tool error: %s", resultText(result))
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(resultText(result)), &m); err != nil {
			t.Fatalf("result %q: %v", resultText(result), err)
		}
		return m
	}
}

func requireToolError(t *testing.T) func(result *mcpgo.CallToolResult, err error) string {
	t.Helper()
	return func(result *mcpgo.CallToolResult, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if !result.IsError {
			t.Fatalf("expected tool error, got %s", resultText(result))
		}
		return resultText(result)
	}
}

// Package mcp exposes the session manager as MCP tools.
package mcp

import (
	"log/slog"

	"github.com/acolita/ptyd/internal/session"
	"github.com/acolita/ptyd/internal/sudo"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer *server.MCPServer
	mgr       *session.Manager
	detector  *sudo.Detector
	logger    *slog.Logger
	version   string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger used by Server.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithVersion sets the version advertised to clients.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a new MCP server over mgr.
func NewServer(mgr *session.Manager, opts ...ServerOption) *Server {
	s := &Server{
		mgr:      mgr,
		detector: sudo.NewDetector(),
		logger:   slog.Default(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = server.NewMCPServer(
		"ptyd",
		s.version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Run starts the MCP server on stdio transport.
func (s *Server) Run() error {
	s.logger.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

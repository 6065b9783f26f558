package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer with the askdb tools and tool-call
// observation.
type Server struct {
	mcp      *server.MCPServer
	observer *ToolObserver
	logger   *zap.Logger
}

// NewServer creates a new MCP server instance with tool-call logging and metrics.
func NewServer(name, version string, logger *zap.Logger) *Server {
	observer := NewToolObserver(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(observer.Hooks()),
	)

	return &Server{
		mcp:      mcpServer,
		observer: observer,
		logger:   logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// RegisterTools adds ask_database, get_schema and health.
func (s *Server) RegisterTools(deps *tools.Deps) {
	tools.RegisterAll(s.mcp, deps)
	s.logger.Debug("MCP tools registered")
}

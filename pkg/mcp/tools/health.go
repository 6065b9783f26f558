package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const healthPingTimeout = 2 * time.Second

type healthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and database reachability.
func RegisterHealthTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{Status: "ok", Version: deps.Version, Database: "unknown"}
		if deps.DB != nil {
			pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
			defer cancel()
			if err := deps.DB.Ping(pingCtx); err != nil {
				deps.logger().Warn("Database ping failed", zap.Error(err))
				res.Status = "degraded"
				res.Database = "unreachable"
			} else {
				res.Database = "ok"
			}
		}

		result, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}

// RegisterAll adds every askdb tool to s.
func RegisterAll(s *server.MCPServer, deps *Deps) {
	RegisterAskDatabaseTool(s, deps)
	RegisterGetSchemaTool(s, deps)
	RegisterHealthTool(s, deps)
}

package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
)

// Tool call outcomes recorded in askdb_mcp_tool_calls_total.
const (
	toolResultOK          = "ok"
	toolResultToolError   = "tool_error"
	toolResultServerError = "error"
)

// ToolObserver logs MCP tool calls and records their duration and outcome.
type ToolObserver struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolObserver creates a ToolObserver.
func NewToolObserver(logger *zap.Logger) *ToolObserver {
	return &ToolObserver{logger: logger.Named("mcp")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (o *ToolObserver) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(o.beforeCallTool)
	hooks.AddAfterCallTool(o.afterCallTool)
	hooks.AddOnError(o.onError)
	return hooks
}

func (o *ToolObserver) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	o.startTimes.Store(id, time.Now())
}

func (o *ToolObserver) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := o.elapsed(id)

	outcome := toolResultOK
	if result != nil && result.IsError {
		outcome = toolResultToolError
	}
	o.record(ctx, req.Params.Name, outcome, elapsed, nil)
}

func (o *ToolObserver) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	o.record(ctx, req.Params.Name, toolResultServerError, o.elapsed(id), err)
}

func (o *ToolObserver) record(ctx context.Context, tool, outcome string, elapsed time.Duration, err error) {
	metrics.ObserveMCPToolCall(tool, outcome, elapsed)

	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("result", outcome),
		zap.Duration("duration", elapsed),
	}
	if ip := audit.ClientIPFromContext(ctx); ip != "" {
		fields = append(fields, zap.String("client_ip", ip))
	}

	if err != nil {
		o.logger.Warn("MCP tool call failed", append(fields, zap.Error(err))...)
		return
	}
	o.logger.Info("MCP tool call", fields...)
}

func (o *ToolObserver) elapsed(id any) time.Duration {
	if v, ok := o.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

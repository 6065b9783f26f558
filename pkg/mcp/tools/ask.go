package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
)

// RegisterAskDatabaseTool adds the ask_database tool, which runs the full
// text-to-SQL pipeline for one question.
func RegisterAskDatabaseTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"ask_database",
		mcp.WithDescription("Answer a natural-language question about the connected PostgreSQL database. "+
			"Returns either an answer with the read-only SQL that was run and its rows, "+
			"or a clarifying question with suggested options."),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to answer (e.g., 'Top reps by revenue')"),
		),
		mcp.WithString(
			"time_range",
			mcp.Description("Optional - Time window hint"),
			mcp.Enum(
				string(models.TimeRangeCalendarMonth),
				string(models.TimeRangeLast30Days),
				string(models.TimeRangeThisQuarter),
				string(models.TimeRangeAllTime),
			),
		),
		mcp.WithArray(
			"history",
			mcp.Description("Optional - Previous turns as objects with 'role' (user or assistant) and 'content'. Only the last 10 are used."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		question = strings.TrimSpace(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		history, err := parseHistory(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		chatReq := &models.ChatRequest{
			Message: question,
			History: history,
		}
		if tr := getOptionalString(req, "time_range"); tr != "" {
			chatReq.Resolved = &models.ResolvedFilters{TimeRange: models.TimeRange(tr)}
		}

		resp, err := deps.Chat.Chat(ctx, chatReq)
		if err != nil {
			code := ErrorCode(err)
			deps.logger().Debug("ask_database failed",
				zap.String("code", code),
				zap.String("error", logging.SanitizeError(err)))
			return NewErrorResultWithDetails(code, services.PublicMessage(err), rejectionDetails(err)), nil
		}

		jsonResult, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chat response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// parseHistory reads the optional history array. Role validation is left to
// ChatRequest.Validate so both surfaces report the same error.
func parseHistory(req mcp.CallToolRequest) ([]models.ChatTurn, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := args["history"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter 'history' must be an array")
	}

	turns := make([]models.ChatTurn, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("history[%d] must be an object with role and content", i)
		}
		role, _ := obj["role"].(string)
		content, _ := obj["content"].(string)
		turns = append(turns, models.ChatTurn{Role: models.ChatRole(role), Content: content})
	}
	return turns, nil
}

func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(val)
}

package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the agent
// as a successful tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the agent can act on (rephrase the question, retry
// later). Protocol-level failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorCode maps a pipeline error to a stable machine-readable code.
func ErrorCode(err error) string {
	var rejected *sqlguard.RejectedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejected):
		return "sql_rejected"
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return "invalid_parameters"
	case errors.Is(err, apperrors.ErrModelOutputInvalid):
		return "model_output_invalid"
	case errors.Is(err, apperrors.ErrGateway):
		return "model_unavailable"
	case errors.Is(err, apperrors.ErrSchemaFetch):
		return "schema_unavailable"
	case errors.Is(err, apperrors.ErrQuery):
		return "query_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal_error"
	}
}

// rejectionDetails exposes the guard stage that refused the SQL.
func rejectionDetails(err error) any {
	if reason, ok := sqlguard.ReasonOf(err); ok {
		return map[string]string{"reason": string(reason)}
	}
	return nil
}

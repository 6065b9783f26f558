package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
)

type schemaResult struct {
	TableCount  int            `json:"table_count"`
	Shortlisted bool           `json:"shortlisted"`
	Tables      []models.Table `json:"tables"`
}

// RegisterGetSchemaTool adds the get_schema tool. With a question it returns
// the same shortlist the pipeline would send to the model.
func RegisterGetSchemaTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription("List the tables and columns of the connected database. "+
			"Pass a question to get only the tables most relevant to it."),
		mcp.WithString(
			"question",
			mcp.Description("Optional - Question used to shortlist relevant tables"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := deps.Chat.GetSchema(ctx)
		if err != nil {
			return NewErrorResult(ErrorCode(err), services.PublicMessage(err)), nil
		}

		result := schemaResult{
			TableCount: summary.TableCount(),
			Tables:     summary.Tables,
		}
		if question := getOptionalString(req, "question"); question != "" {
			result.Tables = services.Shortlist(summary, question, deps.Shortlist)
			result.Shortlisted = true
		}
		if result.Tables == nil {
			result.Tables = []models.Table{}
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

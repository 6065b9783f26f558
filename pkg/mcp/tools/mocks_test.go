package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

type mockChatService struct {
	ChatFunc      func(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
	GetSchemaFunc func(ctx context.Context) (*models.SchemaSummary, error)

	lastReq *models.ChatRequest
}

func (m *mockChatService) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	m.lastReq = req
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return nil, errors.New("ChatFunc not set")
}

func (m *mockChatService) GetSchema(ctx context.Context) (*models.SchemaSummary, error) {
	if m.GetSchemaFunc != nil {
		return m.GetSchemaFunc(ctx)
	}
	return &models.SchemaSummary{Tables: []models.Table{}}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.err
}

// toolResponse is the JSON-RPC envelope of a tools/call reply.
type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool sends a tools/call request through the server and decodes the reply.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()

	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	result := s.HandleMessage(context.Background(), request)
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(resultBytes, &resp))
	return resp
}

func newTestServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}

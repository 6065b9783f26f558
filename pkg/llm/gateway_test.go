package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
)

var testMessages = []Message{
	{Role: RoleSystem, Content: "You write PostgreSQL."},
	{Role: RoleUser, Content: "Top reps by revenue"},
}

func TestOpenAIGateway_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "llama-3.1-8b-instant",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"type\":\"answer\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	gw, err := NewOpenAIGateway(&Config{
		Endpoint:  srv.URL + "/",
		Model:     "llama-3.1-8b-instant",
		APIKey:    "test-key",
		MaxTokens: 1400,
		JSONMode:  true,
	}, zap.NewNop())
	require.NoError(t, err)

	out, err := gw.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"answer"}`, out)

	assert.Equal(t, "llama-3.1-8b-instant", body["model"])
	assert.EqualValues(t, 1400, body["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIGateway_Complete_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit", "code": "rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	gw, err := NewOpenAIGateway(&Config{Endpoint: srv.URL, Model: "m"}, zap.NewNop())
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), testMessages)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrGateway))
	assert.Equal(t, ErrorTypeRateLimit, GetErrorType(err))
	assert.True(t, IsRetryable(err))

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusTooManyRequests, gwErr.StatusCode)
	assert.Equal(t, "m", gwErr.Model)
}

func TestOpenAIGateway_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	gw, err := NewOpenAIGateway(&Config{Endpoint: srv.URL, Model: "m"}, zap.NewNop())
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), testMessages)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeEmpty, GetErrorType(err))
	assert.False(t, IsRetryable(err))
}

func TestNewOpenAIGateway_Validation(t *testing.T) {
	_, err := NewOpenAIGateway(&Config{Model: "m"}, zap.NewNop())
	assert.EqualError(t, err, "endpoint is required")

	_, err = NewOpenAIGateway(&Config{Endpoint: "http://localhost:11434/v1"}, zap.NewNop())
	assert.EqualError(t, err, "model is required")
}

func TestAnthropicGateway_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"type\":\"clarify\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	gw, err := NewAnthropicGateway(&Config{
		Endpoint: srv.URL,
		Model:    "claude-test",
		APIKey:   "test-key",
	}, zap.NewNop())
	require.NoError(t, err)

	out, err := gw.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"clarify"}`, out)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, defaultAnthropicMaxTokens, body["max_tokens"])
	assert.Contains(t, fmt.Sprint(body["system"]), "You write PostgreSQL.")

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1, "system messages are sent as the system prompt")
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestToAnthropicMessages(t *testing.T) {
	system, turns := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleSystem, Content: "schema"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})

	assert.Equal(t, "rules\n\nschema", system)
	require.Len(t, turns, 3)
	assert.Equal(t, "a1", *turns[1].Content[0].Text)
}

func TestNewGateway(t *testing.T) {
	breaker := DefaultCircuitBreakerConfig()

	gw, err := NewGateway(&Config{Provider: "OpenAI", Endpoint: "http://localhost:8000/v1", Model: "m"}, breaker, zap.NewNop())
	require.NoError(t, err)
	_, ok := gw.(*BreakerGateway)
	assert.True(t, ok)

	_, err = NewGateway(&Config{Provider: "anthropic", Model: "claude-test"}, breaker, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")

	_, err = NewGateway(&Config{Provider: "bedrock", Model: "m"}, breaker, zap.NewNop())
	assert.EqualError(t, err, `unknown llm provider "bedrock"`)
}

// Package llm provides the language model gateways used to turn questions into SQL.
package llm

import (
	"context"
)

// Role is the author of a chat message sent to a gateway.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// Gateway sends a conversation to a language model and returns the raw text
// of its reply. Implementations return *Error for every transport or provider
// failure so callers can tell them apart from bad model output.
// Use this interface for dependency injection to enable mocking in tests.
type Gateway interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Ensure gateways implement Gateway at compile time.
var (
	_ Gateway = (*OpenAIGateway)(nil)
	_ Gateway = (*AnthropicGateway)(nil)
	_ Gateway = (*BreakerGateway)(nil)
	_ Gateway = (*MockGateway)(nil)
)

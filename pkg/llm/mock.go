package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is a configurable Gateway for tests.
// Set CompleteFunc to control behavior, or queue canned replies with Responses.
type MockGateway struct {
	// CompleteFunc is called when Complete is invoked. It takes precedence
	// over Responses.
	CompleteFunc func(ctx context.Context, messages []Message) (string, error)

	// Responses are returned in order, one per call, when CompleteFunc is nil.
	// Calls past the end return an error.
	Responses []string

	mu sync.Mutex

	// Call tracking for verification
	CompleteCalls int
	Requests      [][]Message
}

// NewMockGateway creates a mock that replies with responses in order.
func NewMockGateway(responses ...string) *MockGateway {
	return &MockGateway{Responses: responses}
}

// Complete implements Gateway.
func (m *MockGateway) Complete(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	call := m.CompleteCalls
	m.CompleteCalls++
	m.Requests = append(m.Requests, append([]Message(nil), messages...))
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	if call < len(m.Responses) {
		return m.Responses[call], nil
	}
	return "", fmt.Errorf("mock gateway: no response queued for call %d", call+1)
}

// Calls returns the number of Complete invocations.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// LastRequest returns the messages of the most recent call, or nil.
func (m *MockGateway) LastRequest() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

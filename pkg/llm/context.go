package llm

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"
)

// WithContext returns a context carrying values that gateways attach to their
// log lines. The map is merged with any existing values.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	existing := GetContext(ctx)
	if existing == nil {
		existing = make(map[string]any)
	}
	for k, v := range values {
		existing[k] = v
	}
	return context.WithValue(ctx, llmContextKey, existing)
}

// GetContext retrieves the values set by WithContext, if present.
func GetContext(ctx context.Context) map[string]any {
	if c, ok := ctx.Value(llmContextKey).(map[string]any); ok {
		// Return a copy to prevent mutation
		copy := make(map[string]any, len(c))
		for k, v := range c {
			copy[k] = v
		}
		return copy
	}
	return nil
}

// WithRequestContext tags gateway calls with the chat request ID and the
// attempt number of the model invoker.
func WithRequestContext(ctx context.Context, requestID string, attempt int) context.Context {
	values := map[string]any{"attempt": attempt}
	if requestID != "" {
		values["request_id"] = requestID
	}
	return WithContext(ctx, values)
}

// contextFields converts the context values into zap fields.
func contextFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	fields := make([]zap.Field, 0, len(values))
	for k, v := range values {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

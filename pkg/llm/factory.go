package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewGateway creates the gateway for cfg.Provider and wraps it in a circuit
// breaker. An empty provider selects the OpenAI-compatible gateway.
func NewGateway(cfg *Config, breaker CircuitBreakerConfig, logger *zap.Logger) (Gateway, error) {
	var (
		inner Gateway
		err   error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		inner, err = NewOpenAIGateway(cfg, logger)
	case ProviderAnthropic:
		inner, err = NewAnthropicGateway(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s gateway: %w", cfg.Provider, err)
	}

	logger.Info("Model gateway configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("breaker_threshold", breaker.Threshold))

	return NewBreakerGateway(inner, NewCircuitBreaker(breaker), logger), nil
}

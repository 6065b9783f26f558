package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds configuration for creating a gateway.
type Config struct {
	Provider    string        // "openai" (any OpenAI-compatible API) or "anthropic"
	Endpoint    string        // Base URL, e.g., "https://api.groq.com/openai/v1"
	Model       string        // Model name, e.g., "llama-3.1-8b-instant"
	APIKey      string        // Optional for local endpoints
	Temperature float64       // Sampling temperature
	MaxTokens   int           // Completion token cap
	Timeout     time.Duration // Per-call HTTP timeout, 0 for none
	JSONMode    bool          // Ask OpenAI-compatible providers for a JSON object response
}

// OpenAIGateway talks to OpenAI-compatible chat completion endpoints
// (OpenAI, Groq, vLLM, Ollama).
type OpenAIGateway struct {
	client      *openai.Client
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	jsonMode    bool
	logger      *zap.Logger
}

// NewOpenAIGateway creates a gateway for an OpenAI-compatible endpoint.
func NewOpenAIGateway(cfg *Config, logger *zap.Logger) (*OpenAIGateway, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientConfig),
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		jsonMode:    cfg.JSONMode,
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends the messages as one chat completion and returns the first choice.
func (g *OpenAIGateway) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: openAITemperature(g.temperature),
		MaxTokens:   g.maxTokens,
	}
	if g.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	fields := contextFields(ctx)
	g.logger.Debug("LLM request",
		append(fields,
			zap.String("model", g.model),
			zap.Int("messages", len(messages)),
			zap.Float64("temperature", g.temperature))...)

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		g.logger.Error("LLM request failed",
			append(fields,
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))...)
		return "", g.parseError(err)
	}

	if len(resp.Choices) == 0 {
		return "", g.withContext(NewError(ErrorTypeEmpty, "no choices in response", false, nil))
	}

	g.logger.Info("LLM request completed",
		append(fields,
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Duration("elapsed", time.Since(start)))...)

	return resp.Choices[0].Message.Content, nil
}

// GetModel returns the configured model name.
func (g *OpenAIGateway) GetModel() string {
	return g.model
}

// parseError classifies go-openai errors, preferring the typed status code
// over string matching.
func (g *OpenAIGateway) parseError(err error) error {
	classified := ClassifyError(err)

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0:
		classified.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0:
		classified.StatusCode = reqErr.HTTPStatusCode
	}
	return g.withContext(classified)
}

func (g *OpenAIGateway) withContext(e *Error) *Error {
	e.Model = g.model
	e.Endpoint = g.endpoint
	return e
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// openAITemperature maps 0 to the smallest positive float32. The request field
// is omitempty, so a literal 0 would fall back to the provider default.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

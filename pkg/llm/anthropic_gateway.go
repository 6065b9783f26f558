package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 1400

// AnthropicGateway talks to the Anthropic Messages API.
type AnthropicGateway struct {
	client      *anthropic.Client
	endpoint    string
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewAnthropicGateway creates a gateway for the Anthropic Messages API.
// Endpoint is optional and defaults to the public API.
func NewAnthropicGateway(cfg *Config, logger *zap.Logger) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicGateway{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   maxTokens,
		logger:      logger.Named("llm"),
	}, nil
}

// Complete sends the conversation as one Messages call. System messages are
// joined into the request's system prompt.
func (g *AnthropicGateway) Complete(ctx context.Context, messages []Message) (string, error) {
	system, turns := toAnthropicMessages(messages)
	temperature := g.temperature

	fields := contextFields(ctx)
	g.logger.Debug("LLM request",
		append(fields,
			zap.String("model", g.model),
			zap.Int("messages", len(messages)))...)

	start := time.Now()

	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(g.model),
		System:      system,
		Messages:    turns,
		MaxTokens:   g.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		g.logger.Error("LLM request failed",
			append(fields,
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))...)
		return "", g.withContext(ClassifyError(err))
	}

	text := firstText(resp)
	if text == "" {
		return "", g.withContext(NewError(ErrorTypeEmpty, "no text content in response", false, nil))
	}

	g.logger.Info("LLM request completed",
		append(fields,
			zap.Int("prompt_tokens", resp.Usage.InputTokens),
			zap.Int("completion_tokens", resp.Usage.OutputTokens),
			zap.Duration("elapsed", time.Since(start)))...)

	return text, nil
}

// GetModel returns the configured model name.
func (g *AnthropicGateway) GetModel() string {
	return g.model
}

func (g *AnthropicGateway) withContext(e *Error) *Error {
	e.Model = g.model
	e.Endpoint = g.endpoint
	return e
}

func toAnthropicMessages(messages []Message) (string, []anthropic.Message) {
	var system []string
	turns := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		switch m.Role {
		case RoleSystem:
			system = append(system, content)
			continue
		case RoleAssistant:
			turns = append(turns, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{{Type: "text", Text: &content}},
			})
		default:
			turns = append(turns, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &content}},
			})
		}
	}
	return strings.Join(system, "\n\n"), turns
}

func firstText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

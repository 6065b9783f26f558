package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/prompts"
)

// maxModelAttempts bounds gateway calls per question: the initial call and one repair.
const maxModelAttempts = 2

type invokeState int

const (
	stateInitial invokeState = iota
	stateRepair
)

// ModelInvoker turns a prompt pair into a validated model output.
type ModelInvoker interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (models.ModelOutput, error)
}

type modelInvoker struct {
	gateway llm.Gateway
	logger  *zap.Logger
}

// NewModelInvoker creates a ModelInvoker over gateway.
func NewModelInvoker(gateway llm.Gateway, logger *zap.Logger) ModelInvoker {
	return &modelInvoker{
		gateway: gateway,
		logger:  logger.Named("model-invoker"),
	}
}

// Invoke calls the gateway with the user prompt. If the reply does not
// validate, it calls once more with a repair prompt quoting the bad reply;
// the repair call carries only the system prompt and the repair prompt.
// Gateway failures are returned immediately and are never repaired.
// A second invalid reply yields apperrors.ErrModelOutputInvalid.
func (s *modelInvoker) Invoke(ctx context.Context, systemPrompt, userPrompt string) (models.ModelOutput, error) {
	requestID := RequestIDFromContext(ctx)
	state := stateInitial
	var lastRaw string
	var lastErr error

	for attempt := 1; attempt <= maxModelAttempts; attempt++ {
		content := userPrompt
		if state == stateRepair {
			content = prompts.RepairPrompt(lastRaw)
		}
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: content},
		}

		raw, err := s.gateway.Complete(llm.WithRequestContext(ctx, requestID, attempt), messages)
		if err != nil {
			metrics.ObserveModelAttempt(attempt, "gateway_error")
			return nil, fmt.Errorf("model call failed: %w", llm.ClassifyError(err))
		}

		out, err := ValidateModelOutput(raw)
		if err == nil {
			metrics.ObserveModelAttempt(attempt, "ok")
			if attempt > 1 {
				s.logger.Info("Model output repaired",
					zap.String("request_id", requestID),
					zap.Int("attempt", attempt))
			}
			return out, nil
		}

		metrics.ObserveModelAttempt(attempt, validationResult(err))
		s.logger.Warn("Model output invalid",
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt),
			zap.String("error", err.Error()),
			zap.String("output", logging.SanitizeModelOutput(raw)))

		lastRaw = raw
		lastErr = err
		state = stateRepair
	}

	return nil, fmt.Errorf("%w: %w", apperrors.ErrModelOutputInvalid, lastErr)
}

func validationResult(err error) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return "parse_error"
	}
	return "schema_mismatch"
}

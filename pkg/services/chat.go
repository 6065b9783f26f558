package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/prompts"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// QueryExecutor runs SQL that has passed the guard.
type QueryExecutor interface {
	Run(ctx context.Context, query sqlguard.ValidatedSQL) (*models.QueryResult, error)
}

// ChatService answers natural-language questions about the connected database.
type ChatService interface {
	// Chat runs the full pipeline for one question.
	Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)
	// GetSchema returns the (cached) schema summary the pipeline works from.
	GetSchema(ctx context.Context) (*models.SchemaSummary, error)
}

type chatService struct {
	schema    SchemaProvider
	invoker   ModelInvoker
	guard     *sqlguard.Guard
	executor  QueryExecutor
	auditor   *audit.SecurityAuditor
	shortlist ShortlistOptions
	logger    *zap.Logger
}

// NewChatService wires the pipeline stages together.
func NewChatService(
	schema SchemaProvider,
	invoker ModelInvoker,
	guard *sqlguard.Guard,
	executor QueryExecutor,
	auditor *audit.SecurityAuditor,
	shortlist ShortlistOptions,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		schema:    schema,
		invoker:   invoker,
		guard:     guard,
		executor:  executor,
		auditor:   auditor,
		shortlist: shortlist,
		logger:    logger.Named("chat"),
	}
}

var _ ChatService = (*chatService)(nil)

func (s *chatService) GetSchema(ctx context.Context) (*models.SchemaSummary, error) {
	return s.schema.GetSchema(ctx)
}

// Chat validates the request, shortlists the schema, asks the model, checks
// any SQL with the guard, runs it and assembles the response. Only SQL
// returned by the guard is executed or echoed back to the caller.
func (s *chatService) Chat(ctx context.Context, req *models.ChatRequest) (resp *models.ChatResponse, err error) {
	start := time.Now()
	defer func() {
		outcome := "error"
		if err == nil && resp != nil {
			outcome = string(resp.Type)
		}
		metrics.ObserveChat(outcome, time.Since(start))
	}()

	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", apperrors.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, err.Error())
	}

	requestID := uuid.New()
	ctx = WithRequestID(ctx, requestID.String())
	logger := s.logger.With(zap.String("request_id", requestID.String()))

	summary, err := s.schema.GetSchema(ctx)
	if err != nil {
		logger.Error("Failed to load schema", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	tables := Shortlist(summary, req.Message, s.shortlist)
	logger.Debug("Schema shortlisted",
		zap.Int("table_count", summary.TableCount()),
		zap.Int("shortlisted", len(tables)))

	userPrompt := prompts.UserPrompt(prompts.UserPromptInput{
		Tables:   tables,
		Resolved: req.EffectiveFilters(),
		History:  req.RecentHistory(),
		Question: req.Message,
	})

	out, err := s.invoker.Invoke(ctx, prompts.SystemPrompt(), userPrompt)
	if err != nil {
		logger.Error("Model invocation failed", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	switch out := out.(type) {
	case *models.Clarify:
		logger.Info("Clarification requested", zap.Int("options", len(out.Options)))
		return assembleClarify(out), nil

	case *models.Answer:
		validated, err := s.guard.Check(out.SQL)
		if err != nil {
			s.recordRejection(ctx, requestID, req.Message, out.SQL, err)
			return nil, err
		}

		queryStart := time.Now()
		result, err := s.executor.Run(ctx, validated)
		if err != nil {
			logger.Error("Query execution failed",
				zap.String("sql", logging.SanitizeQuery(validated.String())),
				zap.String("error", logging.SanitizeError(err)))
			return nil, err
		}
		metrics.ObserveQuery(len(result.Rows), time.Since(queryStart))
		s.auditor.LogQueryExecution(ctx, requestID, validated.String(), len(result.Rows))

		logger.Info("Question answered",
			zap.Int("row_count", len(result.Rows)),
			zap.Duration("elapsed", time.Since(start)))
		return assembleAnswer(out, validated, result), nil

	default:
		return nil, fmt.Errorf("unexpected model output %T", out)
	}
}

func (s *chatService) recordRejection(ctx context.Context, requestID uuid.UUID, question, candidate string, err error) {
	var rejected *sqlguard.RejectedError
	if !errors.As(err, &rejected) {
		return
	}
	metrics.IncrementGuardRejection(string(rejected.Reason))
	s.auditor.LogGuardRejection(ctx, requestID, audit.GuardRejectionDetails{
		Reason:   string(rejected.Reason),
		Detail:   rejected.Detail,
		Question: question,
		SQL:      candidate,
	})
	if rejected.Injection != nil {
		s.auditor.LogInjectionAttempt(ctx, requestID, rejected.Injection.Fingerprint, rejected.Injection.Literal)
	}
}

func assembleClarify(out *models.Clarify) *models.ChatResponse {
	options := out.Options
	if options == nil {
		options = []string{}
	}
	return &models.ChatResponse{
		OK:                 true,
		Type:               models.OutputTypeClarify,
		ClarifyingQuestion: out.ClarifyingQuestion,
		Options:            options,
	}
}

// assembleAnswer echoes the guard's SQL, never the model's candidate.
func assembleAnswer(out *models.Answer, validated sqlguard.ValidatedSQL, result *models.QueryResult) *models.ChatResponse {
	viz := models.DefaultVisualization()
	if out.Visualization != nil {
		viz = *out.Visualization
	}
	insights := out.Insights
	if insights == nil {
		insights = []string{}
	}
	followups := out.Followups
	if followups == nil {
		followups = []string{}
	}
	if result == nil {
		result = &models.QueryResult{}
	}
	return &models.ChatResponse{
		OK:            true,
		Type:          models.OutputTypeAnswer,
		SQL:           validated.String(),
		Answer:        out.Answer,
		Insights:      insights,
		Followups:     followups,
		Visualization: viz,
		Result:        result,
	}
}

// PublicMessage maps a pipeline error to the text returned to callers.
// Guard refusals and request validation errors are shown as-is; everything
// else is replaced with a fixed message so driver and provider details never
// leave the service.
func PublicMessage(err error) string {
	var rejected *sqlguard.RejectedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejected):
		return rejected.Error()
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return err.Error()
	case errors.Is(err, apperrors.ErrModelOutputInvalid):
		return "The model returned an answer in an unexpected format. Please rephrase the question."
	case errors.Is(err, apperrors.ErrGateway):
		return "The language model is currently unavailable. Please try again later."
	case errors.Is(err, apperrors.ErrSchemaFetch):
		return "Could not load the database schema."
	case errors.Is(err, apperrors.ErrQuery):
		return "The generated query could not be executed."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The request timed out."
	default:
		return "Internal error"
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// maxChatBodyBytes bounds the request body, history included.
const maxChatBodyBytes = 1 << 20

// ConnectResponse is returned by GET /api/connect.
type ConnectResponse struct {
	OK            bool                  `json:"ok"`
	TableCount    int                   `json:"tableCount"`
	SchemaSummary *models.SchemaSummary `json:"schemaSummary"`
}

// ChatHandler serves the text-to-SQL API.
type ChatHandler struct {
	chat    services.ChatService
	timeout time.Duration
	logger  *zap.Logger
}

// NewChatHandler creates a ChatHandler. A non-positive timeout disables the
// per-request deadline.
func NewChatHandler(chat services.ChatService, timeout time.Duration, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:    chat,
		timeout: timeout,
		logger:  logger.Named("chat-handler"),
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.Chat)
	mux.HandleFunc("GET /api/connect", h.Connect)
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: request body must be a JSON object: %w", apperrors.ErrInvalidRequest, err))
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.chat.Chat(ctx, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

// Connect handles GET /api/connect. It reports the schema the pipeline
// would answer from and doubles as a database connectivity check.
func (h *ChatHandler) Connect(w http.ResponseWriter, r *http.Request) {
	summary, err := h.chat.GetSchema(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := ConnectResponse{
		OK:            true,
		TableCount:    summary.TableCount(),
		SchemaSummary: summary,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode connect response", zap.Error(err))
	}
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.Int("status", status),
			zap.String("error", logging.SanitizeError(err)))
	}
	if werr := WriteError(w, status, services.PublicMessage(err)); werr != nil {
		h.logger.Error("Failed to encode error response", zap.Error(werr))
	}
}

// StatusForError maps a pipeline error to its HTTP status.
func StatusForError(err error) int {
	var rejected *sqlguard.RejectedError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrModelOutputInvalid), errors.Is(err, apperrors.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

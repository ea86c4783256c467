package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/api"
	"github.com/ashureev/foundry-chat-proxy/internal/domain"
	"github.com/ashureev/foundry-chat-proxy/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// transcriptWriteTimeout bounds recording one exchange.
const transcriptWriteTimeout = 2 * time.Second

// Handler handles chat HTTP requests.
type Handler struct {
	agent       *Service
	transcripts store.Repository
	logger      *slog.Logger
}

// NewHandler creates a chat handler. transcripts may be nil.
func NewHandler(svc *Service, transcripts store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		agent:       svc,
		transcripts: transcripts,
		logger:      logger,
	}
}

// RegisterRoutes registers chat routes at the root and under /api (the prefix
// the frontend uses). chatMiddleware wraps only the chat route.
func (h *Handler) RegisterRoutes(r chi.Router, chatMiddleware ...func(http.Handler) http.Handler) {
	for _, prefix := range []string{"", "/api"} {
		r.With(chatMiddleware...).Post(prefix+"/chat", h.HandleChat)
		r.Post(prefix+"/createThread", h.HandleCreateThread)
	}
}

// HandleChat handles POST /chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	reqID := chiMiddleware.GetReqID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("Chat request",
		"request_id", reqID,
		"thread_id", stringOrEmpty(req.ThreadID),
		"message_length", len(req.Message),
	)

	resp, err := h.agent.Chat(r.Context(), req)
	if errors.Is(err, ErrMessageRequired) {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		// Chat only returns validation errors; anything else is a programming error.
		h.logger.Error("Unexpected chat error", "request_id", reqID, "error", err)
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.recordExchange(r.Context(), req.Message, resp)

	h.logger.Info("Chat response",
		"request_id", reqID,
		"thread_id", resp.ThreadID,
		"reply_length", len(resp.Message),
		"simulated", resp.Simulated,
	)
	api.JSON(w, http.StatusOK, resp)
}

// HandleCreateThread handles POST /createThread requests. It always succeeds.
func (h *Handler) HandleCreateThread(w http.ResponseWriter, r *http.Request) {
	threadID := h.agent.CreateThread(r.Context())
	api.JSON(w, http.StatusOK, CreateThreadResponse{ThreadID: threadID})
}

func (h *Handler) recordExchange(ctx context.Context, message string, resp ChatResponse) {
	if h.transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptWriteTimeout)
	defer cancel()

	err := store.RecordExchangeWithRetry(ctx, h.transcripts, &domain.Exchange{
		ThreadID:    resp.ThreadID,
		UserMessage: message,
		Reply:       resp.Message,
		AgentName:   resp.AgentName,
		Simulated:   resp.Simulated,
		CreatedAt:   resp.Timestamp,
	})
	if err != nil {
		h.logger.Warn("Failed to record transcript", "thread_id", resp.ThreadID, "error", err)
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

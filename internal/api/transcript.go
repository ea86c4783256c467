package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/foundry-chat-proxy/internal/domain"
	"github.com/ashureev/foundry-chat-proxy/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultTranscriptLimit = 50

// TranscriptHandler serves recorded exchanges for a thread.
type TranscriptHandler struct {
	repo store.Repository
}

// NewTranscriptHandler creates a transcript handler.
func NewTranscriptHandler(repo store.Repository) *TranscriptHandler {
	return &TranscriptHandler{repo: repo}
}

// RegisterRoutes registers transcript routes at the root and under /api.
func (h *TranscriptHandler) RegisterRoutes(r chi.Router) {
	r.Get("/threads/{threadId}/transcript", h.GetTranscript)
	r.Get("/api/threads/{threadId}/transcript", h.GetTranscript)
}

// GetTranscript returns the most recent exchanges of a thread, oldest first.
func (h *TranscriptHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadId")
	if threadID == "" {
		Error(w, http.StatusBadRequest, "threadId is required")
		return
	}

	limit := defaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	exchanges, err := h.repo.ListExchanges(r.Context(), threadID, limit)
	if err != nil {
		slog.Error("Failed to list transcript", "error", err, "thread_id", threadID)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if exchanges == nil {
		exchanges = []*domain.Exchange{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"threadId":  threadID,
		"exchanges": exchanges,
	})
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

// InferenceLogReader lists recorded generative API calls.
type InferenceLogReader interface {
	List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error)
	GetStats(ctx context.Context, since *time.Time) (*models.InferenceLogStats, error)
}

// InferenceLogHandler handles HTTP requests for inference logs
type InferenceLogHandler struct {
	repo   InferenceLogReader
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new handler
func NewInferenceLogHandler(repo InferenceLogReader, logger *slog.Logger) *InferenceLogHandler {
	return &InferenceLogHandler{
		repo:   repo,
		logger: logger,
	}
}

// ListInferenceLogs handles GET /api/inference-logs
func (h *InferenceLogHandler) ListInferenceLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := models.InferenceLogQuery{
		Operation: r.URL.Query().Get("operation"),
		Status:    r.URL.Query().Get("status"),
		Since:     parseSince(r),
		Limit:     queryInt(r, "limit", 100),
	}

	logs, err := h.repo.List(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to list inference logs", "error", err)
		http.Error(w, "Failed to list inference logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"limit": query.Limit,
	})
}

// GetInferenceStats handles GET /api/inference-logs/stats
func (h *InferenceLogHandler) GetInferenceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.repo.GetStats(r.Context(), parseSince(r))
	if err != nil {
		h.logger.Error("failed to get inference stats", "error", err)
		http.Error(w, "Failed to get inference stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, stats)
}

func parseSince(r *http.Request) *time.Time {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return nil
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &since
}

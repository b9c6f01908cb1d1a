package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/models"
)

// WorkflowRunner runs the correction workflow on demand.
type WorkflowRunner interface {
	Run(ctx context.Context, createLimit, processLimit int) correction.WorkflowReport
	RunCleanup(ctx context.Context) correction.WorkflowReport
}

// RunLimits are the defaults for on-demand runs.
type RunLimits struct {
	CreateLimit  int
	ProcessLimit int
}

// CorrectionHandler serves the correction admin endpoints.
type CorrectionHandler struct {
	store    correction.Store
	workflow WorkflowRunner
	limits   RunLimits
	logger   *slog.Logger
}

// NewCorrectionHandler creates a new correction handler
func NewCorrectionHandler(store correction.Store, workflow WorkflowRunner, limits RunLimits, logger *slog.Logger) *CorrectionHandler {
	return &CorrectionHandler{
		store:    store,
		workflow: workflow,
		limits:   limits,
		logger:   logger,
	}
}

// CorrectionsResponse is the list payload.
type CorrectionsResponse struct {
	Corrections []models.CorrectionRecord `json:"corrections"`
	Count       int                       `json:"count"`
	Filter      models.CorrectionFilter   `json:"filter"`
}

// ListCorrections handles GET /api/corrections
func (h *CorrectionHandler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := models.CorrectionFilter{
		Slug:  r.URL.Query().Get("slug"),
		Limit: queryInt(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = models.CorrectionStatus(raw)
		switch filter.Status {
		case models.CorrectionStatusPending, models.CorrectionStatusProcessing, models.CorrectionStatusCompleted,
			models.CorrectionStatusFailed, models.CorrectionStatusNoChangesNeeded:
		default:
			http.Error(w, "Unknown status", http.StatusBadRequest)
			return
		}
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := models.ParseCorrectionType(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Type = t
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list corrections", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.CorrectionRecord{}
	}

	writeJSON(w, h.logger, http.StatusOK, CorrectionsResponse{
		Corrections: records,
		Count:       len(records),
		Filter:      filter,
	})
}

// StatsResponse counts records per status.
type StatsResponse struct {
	ByStatus map[models.CorrectionStatus]int `json:"by_status"`
	Total    int                             `json:"total"`
}

// GetStats handles GET /api/corrections/stats
func (h *CorrectionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to count corrections", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, h.logger, http.StatusOK, StatsResponse{ByStatus: counts, Total: total})
}

// RunWorkflow handles POST /api/corrections/run
func (h *CorrectionHandler) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	createLimit := queryInt(r, "create_limit", h.limits.CreateLimit)
	processLimit := queryInt(r, "process_limit", h.limits.ProcessLimit)

	h.logger.Info("manual workflow run requested",
		"create_limit", createLimit,
		"process_limit", processLimit)

	h.respondReport(w, h.workflow.Run(r.Context(), createLimit, processLimit))
}

// RunCleanup handles POST /api/corrections/cleanup
func (h *CorrectionHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.logger.Info("manual cleanup requested")
	h.respondReport(w, h.workflow.RunCleanup(r.Context()))
}

func (h *CorrectionHandler) respondReport(w http.ResponseWriter, report correction.WorkflowReport) {
	status := http.StatusOK
	if report.Rejected() {
		status = http.StatusConflict
	}
	writeJSON(w, h.logger, status, report)
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/autoguides/contentfix/internal/auth"
	"github.com/autoguides/contentfix/internal/correction"
)

// Routes collects what the admin API serves. InferenceLogs and Health entries
// are optional.
type Routes struct {
	Store         correction.Store
	Workflow      WorkflowRunner
	Limits        RunLimits
	InferenceLogs InferenceLogReader
	Health        map[string]HealthChecker
	Auth          auth.Config
}

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, routes Routes, logger *slog.Logger) {
	authHandler := NewAuthHandler(routes.Auth, logger)
	correctionHandler := NewCorrectionHandler(routes.Store, routes.Workflow, routes.Limits, logger)

	// Auth middleware
	protect := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(routes.Auth)(h)
	}

	mux.HandleFunc("/healthz", healthHandler(routes.Health, logger))

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.Handle("/api/auth/validate", protect(authHandler.ValidateToken))

	// Correction admin routes (protected)
	mux.Handle("/api/corrections", protect(correctionHandler.ListCorrections))
	mux.Handle("/api/corrections/stats", protect(correctionHandler.GetStats))
	mux.Handle("/api/corrections/run", protect(correctionHandler.RunWorkflow))
	mux.Handle("/api/corrections/cleanup", protect(correctionHandler.RunCleanup))

	if routes.InferenceLogs != nil {
		inferenceLogHandler := NewInferenceLogHandler(routes.InferenceLogs, logger)
		mux.Handle("/api/inference-logs", protect(inferenceLogHandler.ListInferenceLogs))
		mux.Handle("/api/inference-logs/stats", protect(inferenceLogHandler.GetInferenceStats))
	}

	logger.Info("api routes registered", "inference_logs", routes.InferenceLogs != nil)
}

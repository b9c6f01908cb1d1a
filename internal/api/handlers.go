package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// queryInt reads a positive integer query parameter, or returns fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// healthHandler serves GET /healthz.
func healthHandler(checks map[string]HealthChecker, logger *slog.Logger) http.HandlerFunc {
	started := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", "dependency", name, "error", err)
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		writeJSON(w, logger, status, map[string]interface{}{
			"status":         http.StatusText(status),
			"uptime_seconds": int(time.Since(started).Seconds()),
			"checks":         results,
		})
	}
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

// InferenceLogRepository handles inference log database operations
type InferenceLogRepository struct {
	db *sql.DB
}

// NewInferenceLogRepository creates a new repository
func NewInferenceLogRepository(db *sql.DB) *InferenceLogRepository {
	return &InferenceLogRepository{db: db}
}

// Create logs a new inference call
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	query := `
		INSERT INTO inference_logs (
			provider, model, operation, correction_id, input_tokens, output_tokens,
			cost_usd, latency_ms, status, status_code, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.Provider,
		log.Model,
		log.Operation,
		nullString(log.CorrectionID),
		log.InputTokens,
		log.OutputTokens,
		log.CostUSD,
		log.LatencyMs,
		log.Status,
		log.StatusCode,
		log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inference log: %w", err)
	}
	return nil
}

// List retrieves inference logs newest first with optional filtering
func (r *InferenceLogRepository) List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error) {
	sqlQuery := `
		SELECT id, provider, model, operation, correction_id, input_tokens, output_tokens,
		       cost_usd, latency_ms, status, status_code, error_message, created_at
		FROM inference_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if query.Status != "" {
		sqlQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, query.Status)
		argPos++
	}

	if query.Operation != "" {
		sqlQuery += fmt.Sprintf(" AND operation = $%d", argPos)
		args = append(args, query.Operation)
		argPos++
	}

	if query.Since != nil {
		sqlQuery += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *query.Since)
		argPos++
	}

	sqlQuery += " ORDER BY created_at DESC"

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference logs: %w", err)
	}
	defer rows.Close()

	var logs []models.InferenceLog
	for rows.Next() {
		var (
			log          models.InferenceLog
			correctionID sql.NullString
			inputTokens  sql.NullInt64
			outputTokens sql.NullInt64
			cost         sql.NullFloat64
			statusCode   sql.NullInt64
			errorMessage sql.NullString
		)

		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&correctionID,
			&inputTokens,
			&outputTokens,
			&cost,
			&log.LatencyMs,
			&log.Status,
			&statusCode,
			&errorMessage,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", err)
		}

		log.CorrectionID = correctionID.String
		log.InputTokens = nullIntPtr(inputTokens)
		log.OutputTokens = nullIntPtr(outputTokens)
		log.StatusCode = nullIntPtr(statusCode)
		if cost.Valid {
			log.CostUSD = &cost.Float64
		}
		if errorMessage.Valid {
			log.ErrorMessage = &errorMessage.String
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// GetStats aggregates calls made at or after since. A nil since covers all logs.
func (r *InferenceLogRepository) GetStats(ctx context.Context, since *time.Time) (*models.InferenceLogStats, error) {
	query := `
		SELECT
			COUNT(*) as total_calls,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as success_calls,
			COALESCE(SUM(CASE WHEN status = 'throttled' THEN 1 ELSE 0 END), 0) as throttled_calls,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) as failed_calls,
			COALESCE(SUM(cost_usd), 0) as total_cost_usd,
			COALESCE(AVG(latency_ms), 0) as avg_latency_ms
		FROM inference_logs
	`
	args := []interface{}{}
	if since != nil {
		query += " WHERE created_at >= $1"
		args = append(args, *since)
	}

	var stats models.InferenceLogStats
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalCalls,
		&stats.SuccessCalls,
		&stats.ThrottledCalls,
		&stats.FailedCalls,
		&stats.TotalCostUSD,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get inference stats: %w", err)
	}

	return &stats, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

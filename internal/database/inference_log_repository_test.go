package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/autoguides/contentfix/internal/models"
)

func TestInferenceLogRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewInferenceLogRepository(db)
	status := 429
	msg := "rate limited"

	mock.ExpectExec("INSERT INTO inference_logs").
		WithArgs("openai", "gpt-4o-mini", "pressure_fix", "c1", nil, nil, nil, 120, "throttled", &status, &msg).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Create(context.Background(), models.InferenceLog{
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Operation:    "pressure_fix",
		CorrectionID: "c1",
		LatencyMs:    120,
		Status:       models.InferenceStatusThrottled,
		StatusCode:   &status,
		ErrorMessage: &msg,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInferenceLogRepositoryList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewInferenceLogRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("AND status = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("success", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "provider", "model", "operation", "correction_id", "input_tokens", "output_tokens",
			"cost_usd", "latency_ms", "status", "status_code", "error_message", "created_at",
		}).AddRow(7, "anthropic", "claude-3-5-haiku-latest", "title_year_fix", nil, 812, 64, 0.0012, 950, "success", nil, nil, now))

	logs, err := repo.List(context.Background(), models.InferenceLogQuery{Status: "success", Limit: 5})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	l := logs[0]
	if l.InputTokens == nil || *l.InputTokens != 812 || l.StatusCode != nil || l.CorrectionID != "" {
		t.Errorf("unexpected log: %+v", l)
	}
	if l.CostUSD == nil || *l.CostUSD != 0.0012 {
		t.Errorf("expected cost 0.0012, got %v", l.CostUSD)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInferenceLogRepositoryGetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewInferenceLogRepository(db)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE created_at >= \\$1").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_calls", "success_calls", "throttled_calls", "failed_calls", "total_cost_usd", "avg_latency_ms",
		}).AddRow(10, 7, 2, 1, 0.05, 830.5))

	stats, err := repo.GetStats(context.Background(), &since)
	if err != nil {
		t.Fatalf("GetStats returned error: %v", err)
	}
	if stats.TotalCalls != 10 || stats.ThrottledCalls != 2 || stats.AvgLatencyMs != 830.5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

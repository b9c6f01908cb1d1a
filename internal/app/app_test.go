package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/autoguides/contentfix/internal/api"
	"github.com/autoguides/contentfix/internal/config"
	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
)

type scriptedCompleter struct {
	responses []string
	calls     int
}

func (c *scriptedCompleter) CanMakeRequest(ctx context.Context) bool    { return true }
func (c *scriptedCompleter) WaitTime(ctx context.Context) time.Duration { return 0 }

func (c *scriptedCompleter) Complete(ctx context.Context, prompt, systemPrompt string, opts ...llm.CallOption) (string, error) {
	resp := c.responses[c.calls%len(c.responses)]
	c.calls++
	return resp, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mismatchedArticle() models.Article {
	return models.Article{
		Slug:   "toyota-corolla-2023",
		Domain: "tire-pressure",
		Status: "published",
		Title:  "2023 Toyota Corolla Tire Pressure",
		Content: models.ArticleContent{
			Introduction: "Keep the tires at 30/30 PSI.",
			VehicleData: models.VehicleData{
				Year:  2023,
				Make:  "Toyota",
				Model: "Corolla",
				Pressures: models.PressureData{
					EmptyFront:      models.PSI(30),
					EmptyRear:       models.PSI(30),
					PressureDisplay: "35/35 PSI",
				},
			},
		},
	}
}

func TestBuildWorkflowEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := correction.NewMemoryStore(nil)
	articles := correction.NewMemoryArticleStore(mismatchedArticle())
	completer := &scriptedCompleter{responses: []string{
		"```json\n{\"needs_update\": true, \"corrected_pressures\": {\"pressure_display\": \"30/30 PSI\"}}\n```",
	}}

	workflow := BuildWorkflow(store, articles, completer, nil, config.WorkflowConfig{
		Types:         models.AllCorrectionTypes(),
		CleanupChance: 0,
		StuckAfter:    2 * time.Hour,
		FailedTTL:     24 * time.Hour,
	}, config.ArticleStoreConfig{Domain: "tire-pressure", Status: "published"}, discardLogger())

	report := workflow.Run(ctx, 10, 5)
	if !report.Succeeded() {
		t.Fatalf("workflow reported errors: %v", report.Errors)
	}
	if report.Creation == nil || report.Creation.Created != 1 {
		t.Fatalf("expected one created record, got %+v", report.Creation)
	}
	if report.Processing == nil || report.Processing.Completed != 1 {
		t.Fatalf("expected one completed record, got %+v", report.Processing)
	}
	if report.CleanupRan {
		t.Error("cleanup should not run with zero chance")
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus returned error: %v", err)
	}
	if counts[models.CorrectionStatusCompleted] != 1 {
		t.Errorf("expected one completed record, got %v", counts)
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		provider string
		expected string
	}{
		{"openai", "openai"},
		{"anthropic", "anthropic"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			backend, err := newBackend(config.LLMConfig{Provider: tt.provider, APIKey: "key"})
			if err != nil {
				t.Fatalf("newBackend returned error: %v", err)
			}
			if backend.Name() != tt.expected {
				t.Errorf("expected %s backend, got %s", tt.expected, backend.Name())
			}
		})
	}

	if _, err := newBackend(config.LLMConfig{Provider: "openai"}); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := newBackend(config.LLMConfig{Provider: "mistral", APIKey: "key"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewGateStateRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	a := &App{
		Config: config.Config{RateLimit: config.RateLimitConfig{
			Backend:      "redis",
			RedisAddress: mr.Addr(),
			KeyPrefix:    "contentfix:test",
		}},
		health: make(map[string]api.HealthChecker),
		logger: discardLogger(),
	}
	t.Cleanup(func() { _ = a.Close() })

	state, err := a.newGateState()
	if err != nil {
		t.Fatalf("newGateState returned error: %v", err)
	}
	if _, ok := state.(*llm.RedisState); !ok {
		t.Fatalf("expected redis state, got %T", state)
	}

	ctx := context.Background()
	at := time.Unix(1767225600, 0)
	if err := state.RecordRequest(ctx, at, time.Minute); err != nil {
		t.Fatalf("RecordRequest returned error: %v", err)
	}
	st, err := state.Get(ctx)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !st.LastRequest.Equal(at) {
		t.Errorf("expected last request %v, got %v", at, st.LastRequest)
	}
	if !mr.Exists("contentfix:test:last_request") {
		t.Error("expected key under configured prefix")
	}

	if err := a.health["redis"](ctx); err != nil {
		t.Errorf("expected redis health check to pass, got %v", err)
	}
}

func TestNewGateStateMemory(t *testing.T) {
	a := &App{health: make(map[string]api.HealthChecker), logger: discardLogger()}

	state, err := a.newGateState()
	if err != nil {
		t.Fatalf("newGateState returned error: %v", err)
	}
	if _, ok := state.(*llm.MemoryState); !ok {
		t.Errorf("expected memory state, got %T", state)
	}
	if len(a.closers) != 0 {
		t.Errorf("memory state should not register closers")
	}
}

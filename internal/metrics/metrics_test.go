package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/corrections/run", nil)
	rr := httptest.NewRecorder()
	collector.InstrumentHandler(handler).ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `contentfix_http_requests_total{method="POST",path="/api/corrections/run",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}
	if !strings.Contains(body, `contentfix_http_request_duration_seconds_count{method="POST",path="/api/corrections/run",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorObservesWorkflow(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveWorkflow(correction.WorkflowReport{
		DurationMs: 2500,
		Creation: &correction.CreationCounters{
			ByType: map[models.CorrectionType]int{models.CorrectionTypePressureFix: 3},
		},
		Processing: &correction.ProcessingCounters{Completed: 1, Failed: 2, SkippedRateLimited: true},
		Cleanup:    &correction.CleanupCounters{DuplicatesRemoved: 4},
		CleanupRan: true,
	})
	collector.ObserveWorkflow(correction.WorkflowReport{Errors: []string{"creation: boom"}})

	body := scrape(t, collector)
	for _, want := range []string{
		`contentfix_workflow_runs_total{result="success"} 1`,
		`contentfix_workflow_runs_total{result="error"} 1`,
		`contentfix_corrections_created_total{type="pressure_fix"} 3`,
		`contentfix_corrections_processed_total{outcome="failed"} 2`,
		`contentfix_corrections_rate_limited_runs_total 1`,
		`contentfix_corrections_cleanup_total{action="duplicates_removed"} 4`,
		`contentfix_workflow_run_duration_seconds_count 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}

func TestCollectorRecordsCalls(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	ctx := context.Background()
	collector.RecordCall(ctx, llm.Call{Provider: "openai", InputTokens: 900, OutputTokens: 100, Latency: time.Second})
	collector.RecordCall(ctx, llm.Call{Provider: "openai", Err: &llm.APIError{StatusCode: 429}})
	collector.RecordCall(ctx, llm.Call{Provider: "openai", Err: errors.New("dial tcp: connection refused")})

	body := scrape(t, collector)
	for _, want := range []string{
		`contentfix_llm_calls_total{outcome="success",provider="openai"} 1`,
		`contentfix_llm_calls_total{outcome="throttled",provider="openai"} 1`,
		`contentfix_llm_calls_total{outcome="error",provider="openai"} 1`,
		`contentfix_llm_tokens_total{direction="input",provider="openai"} 900`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}

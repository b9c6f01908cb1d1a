package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
)

type memoryWriter struct {
	mu   sync.Mutex
	logs []models.InferenceLog
	err  error
}

func (w *memoryWriter) Create(ctx context.Context, log models.InferenceLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.logs = append(w.logs, log)
	return nil
}

func TestRecordCallSuccess(t *testing.T) {
	writer := &memoryWriter{}
	logger := NewLogger(writer, nil)

	logger.RecordCall(context.Background(), llm.Call{
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Operation:    "pressure_fix",
		CorrectionID: "c1",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		Latency:      1500 * time.Millisecond,
	})
	logger.Wait()

	if len(writer.logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(writer.logs))
	}
	log := writer.logs[0]
	if log.Status != models.InferenceStatusSuccess || log.LatencyMs != 1500 || log.CorrectionID != "c1" {
		t.Errorf("unexpected log: %+v", log)
	}
	if log.CostUSD == nil || math.Abs(*log.CostUSD-0.75) > 1e-9 {
		t.Errorf("expected cost 0.75, got %v", log.CostUSD)
	}
	if log.ErrorMessage != nil || log.StatusCode != nil {
		t.Errorf("expected no error fields, got %+v", log)
	}
}

func TestRecordCallThrottled(t *testing.T) {
	writer := &memoryWriter{}
	logger := NewLogger(writer, nil)

	// a cancelled caller context must not drop the write
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger.RecordCall(ctx, llm.Call{
		Provider: "anthropic",
		Model:    "claude-3-5-haiku-latest",
		Err:      fmt.Errorf("completion failed: %w", &llm.APIError{StatusCode: 429, Body: "slow down"}),
	})
	logger.Wait()

	if len(writer.logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(writer.logs))
	}
	log := writer.logs[0]
	if log.Status != models.InferenceStatusThrottled {
		t.Errorf("expected throttled status, got %q", log.Status)
	}
	if log.StatusCode == nil || *log.StatusCode != 429 {
		t.Errorf("expected status code 429, got %v", log.StatusCode)
	}
	if log.InputTokens != nil || log.CostUSD != nil {
		t.Errorf("expected no token fields without usage, got %+v", log)
	}
}

func TestRecordCallWriterFailure(t *testing.T) {
	writer := &memoryWriter{err: errors.New("connection refused")}
	logger := NewLogger(writer, nil)

	logger.RecordCall(context.Background(), llm.Call{Provider: "openai", Model: "gpt-4o"})
	logger.Wait()

	if len(writer.logs) != 0 {
		t.Errorf("expected nothing stored, got %d", len(writer.logs))
	}
}

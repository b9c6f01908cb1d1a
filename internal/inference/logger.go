package inference

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
)

// LogWriter persists inference logs.
type LogWriter interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger logs inference calls to the database. It implements llm.CallRecorder.
type Logger struct {
	repo    LogWriter
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ llm.CallRecorder = (*Logger)(nil)

// NewLogger creates a new inference logger
func NewLogger(repo LogWriter, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		repo:    repo,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// RecordCall logs a finished call asynchronously to avoid blocking the
// correction being processed.
func (l *Logger) RecordCall(ctx context.Context, call llm.Call) {
	log := buildLog(call)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		if err := l.repo.Create(bgCtx, log); err != nil {
			l.logger.Error("failed to log inference call",
				"operation", log.Operation,
				"correction_id", log.CorrectionID,
				"error", err)
		}
	}()
}

// Wait blocks until every pending write has finished.
func (l *Logger) Wait() {
	l.wg.Wait()
}

func buildLog(call llm.Call) models.InferenceLog {
	log := models.InferenceLog{
		Provider:     call.Provider,
		Model:        call.Model,
		Operation:    call.Operation,
		CorrectionID: call.CorrectionID,
		LatencyMs:    int(call.Latency.Milliseconds()),
		Status:       call.Outcome(),
	}

	if call.InputTokens > 0 || call.OutputTokens > 0 {
		input, output := call.InputTokens, call.OutputTokens
		log.InputTokens = &input
		log.OutputTokens = &output

		cost := estimateCost(call.Provider, call.Model, input, output)
		log.CostUSD = &cost
	}

	if call.Err != nil {
		msg := call.Err.Error()
		log.ErrorMessage = &msg
		if code := llm.StatusCode(call.Err); code != 0 {
			log.StatusCode = &code
		}
	}

	return log
}

// estimateCost provides rough cost estimates (update with actual pricing)
func estimateCost(provider, model string, inputTokens, outputTokens int) float64 {
	// Rough estimates per 1M tokens
	var inputCostPer1M, outputCostPer1M float64

	switch provider {
	case "anthropic":
		switch model {
		case "claude-3-5-haiku-latest", "claude-3-5-haiku-20241022":
			inputCostPer1M, outputCostPer1M = 0.80, 4.00
		case "claude-3-haiku-20240307":
			inputCostPer1M, outputCostPer1M = 0.25, 1.25
		default:
			inputCostPer1M, outputCostPer1M = 3.00, 15.00
		}
	default:
		switch model {
		case "gpt-4o":
			inputCostPer1M, outputCostPer1M = 2.50, 10.00
		case "gpt-4o-mini":
			inputCostPer1M, outputCostPer1M = 0.15, 0.60
		default:
			inputCostPer1M, outputCostPer1M = 5.00, 15.00
		}
	}

	inputCost := (float64(inputTokens) / 1_000_000) * inputCostPer1M
	outputCost := (float64(outputTokens) / 1_000_000) * outputCostPer1M

	return inputCost + outputCost
}

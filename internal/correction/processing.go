package correction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
)

// Completer is the rate-limited generative client the processor drives.
type Completer interface {
	CanMakeRequest(ctx context.Context) bool
	WaitTime(ctx context.Context) time.Duration
	Complete(ctx context.Context, prompt, systemPrompt string, opts ...llm.CallOption) (string, error)
}

// ProcessingCounters summarises one processing pass.
type ProcessingCounters struct {
	Fetched            int   `json:"fetched"`
	Processed          int   `json:"processed"`
	Completed          int   `json:"completed"`
	NoChanges          int   `json:"no_changes"`
	Failed             int   `json:"failed"`
	Released           int   `json:"released"`
	Skipped            int   `json:"skipped"`
	SkippedRateLimited bool  `json:"skipped_rate_limited"`
	// StoppedRateLimited is set when the gate closed or the API throttled
	// after at least one record was attempted.
	StoppedRateLimited bool  `json:"stopped_rate_limited"`
	WaitSeconds        int   `json:"wait_seconds,omitempty"`
	Err                error `json:"-"`
}

// RateLimited reports whether the pass ended at the gate, either before the
// first record or partway through.
func (c ProcessingCounters) RateLimited() bool {
	return c.SkippedRateLimited || c.StoppedRateLimited
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeNoChanges
	outcomeFailed
	outcomeThrottled
	outcomeReleased
	outcomeConflict
)

// Processor claims pending records and drives them through the API.
type Processor struct {
	store    Store
	articles ArticleStore
	client   Completer
	engine   *Engine
	prompts  *PromptTemplates
	types    []models.CorrectionType
	logger   *slog.Logger
}

// NewProcessor creates the processing phase.
func NewProcessor(store Store, articles ArticleStore, client Completer, engine *Engine, prompts *PromptTemplates, types []models.CorrectionType, logger *slog.Logger) *Processor {
	if engine == nil {
		engine = NewEngine(nil)
	}
	if prompts == nil {
		prompts = NewPromptTemplates()
	}
	if len(types) == 0 {
		types = models.AllCorrectionTypes()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    store,
		articles: articles,
		client:   client,
		engine:   engine,
		prompts:  prompts,
		types:    types,
		logger:   logger,
	}
}

func waitSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// ProcessAvailable handles up to limit pending records, oldest first. It
// returns at once when the gate is closed, and stops early (counting the rest
// as skipped) when the gate closes between records.
func (p *Processor) ProcessAvailable(ctx context.Context, limit int) ProcessingCounters {
	var counters ProcessingCounters

	if !p.client.CanMakeRequest(ctx) {
		counters.SkippedRateLimited = true
		counters.WaitSeconds = waitSeconds(p.client.WaitTime(ctx))
		p.logger.Info("processing skipped, rate limited", "wait_seconds", counters.WaitSeconds)
		return counters
	}

	records, err := p.store.FindPending(ctx, p.types, limit)
	if err != nil {
		counters.Err = fmt.Errorf("failed to fetch pending corrections: %w", err)
		return counters
	}
	counters.Fetched = len(records)

	for i := range records {
		remaining := len(records) - i
		if ctx.Err() != nil {
			counters.Skipped += remaining
			counters.Err = ctx.Err()
			break
		}
		if i > 0 && !p.client.CanMakeRequest(ctx) {
			counters.Skipped += remaining
			counters.StoppedRateLimited = true
			counters.WaitSeconds = waitSeconds(p.client.WaitTime(ctx))
			break
		}

		result, err := p.processRecord(ctx, &records[i])
		if err != nil {
			counters.Err = err
		}

		switch result {
		case outcomeCompleted:
			counters.Processed++
			counters.Completed++
		case outcomeNoChanges:
			counters.Processed++
			counters.NoChanges++
		case outcomeFailed:
			counters.Processed++
			counters.Failed++
		case outcomeConflict:
			counters.Skipped++
		case outcomeThrottled, outcomeReleased:
			counters.Released++
			counters.Skipped += remaining - 1
			counters.StoppedRateLimited = result == outcomeThrottled
			counters.WaitSeconds = waitSeconds(p.client.WaitTime(ctx))
		}
		if result == outcomeThrottled || result == outcomeReleased {
			break
		}
	}

	p.logger.Info("processing phase finished",
		"fetched", counters.Fetched,
		"completed", counters.Completed,
		"no_changes", counters.NoChanges,
		"failed", counters.Failed,
		"skipped", counters.Skipped,
		"rate_limited", counters.RateLimited())
	return counters
}

func (p *Processor) processRecord(ctx context.Context, rec *models.CorrectionRecord) (outcome, error) {
	logger := p.logger.With(
		"correction_id", rec.ID,
		"slug", rec.ArticleSlug,
		"correction_type", rec.CorrectionType)

	if err := p.store.MarkProcessing(ctx, rec); err != nil {
		if errors.Is(err, ErrClaimConflict) {
			logger.Warn("correction claimed elsewhere, skipping", "error", err)
			return outcomeConflict, nil
		}
		return outcomeConflict, fmt.Errorf("failed to claim %s: %w", rec.ID, err)
	}

	prompt, err := p.prompts.BuildPrompt(*rec)
	if err != nil {
		return p.fail(ctx, logger, rec, err)
	}

	raw, err := p.client.Complete(ctx, prompt, p.prompts.SystemPrompt,
		llm.WithOperation(string(rec.CorrectionType), rec.ID))
	if err != nil {
		if errors.Is(err, llm.ErrThrottled) {
			logger.Warn("generative api throttled, releasing correction")
			return p.release(ctx, logger, rec, outcomeThrottled)
		}
		if ctx.Err() != nil {
			logger.Warn("processing cancelled, releasing correction", "error", err)
			return p.release(ctx, logger, rec, outcomeReleased)
		}
		return p.fail(ctx, logger, rec, err)
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		return p.fail(ctx, logger, rec, err)
	}
	payload, err := DecodePayload(rec.CorrectionType, parsed)
	if err != nil {
		return p.fail(ctx, logger, rec, err)
	}
	resultData, err := json.Marshal(payload)
	if err != nil {
		return p.fail(ctx, logger, rec, fmt.Errorf("failed to encode payload: %w", err))
	}

	if !payload.UpdateNeeded() {
		reason := "Model reported no changes needed"
		if explanation := payloadExplanation(payload); explanation != "" {
			reason += ": " + explanation
		}
		if err := p.store.MarkNoChanges(ctx, rec, resultData, reason); err != nil {
			return outcomeNoChanges, fmt.Errorf("failed to mark %s no changes: %w", rec.ID, err)
		}
		logger.Info("correction not needed")
		return outcomeNoChanges, nil
	}

	article, err := p.articles.FindBySlug(ctx, rec.ArticleSlug)
	if err != nil {
		return p.fail(ctx, logger, rec, fmt.Errorf("failed to load article: %w", err))
	}
	if article == nil {
		return p.fail(ctx, logger, rec, fmt.Errorf("article %s not found", rec.ArticleSlug))
	}

	result, err := p.engine.Apply(article, payload)
	if err != nil {
		return p.fail(ctx, logger, rec, err)
	}
	if !result.Changed() {
		return p.fail(ctx, logger, rec, ErrApplyNoop)
	}

	if err := p.articles.Update(ctx, rec.ArticleSlug, result.Updates); err != nil {
		return p.fail(ctx, logger, rec, fmt.Errorf("failed to update article: %w", err))
	}

	if err := p.store.MarkCompleted(ctx, rec, resultData); err != nil {
		return outcomeCompleted, fmt.Errorf("failed to mark %s completed: %w", rec.ID, err)
	}
	logger.Info("correction applied", "fields", result.Paths())
	return outcomeCompleted, nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, rec *models.CorrectionRecord, cause error) (outcome, error) {
	logger.Warn("correction failed", "error", cause)
	if err := p.store.MarkFailed(context.WithoutCancel(ctx), rec, cause.Error()); err != nil {
		return outcomeFailed, fmt.Errorf("failed to mark %s failed: %w", rec.ID, err)
	}
	return outcomeFailed, nil
}

func (p *Processor) release(ctx context.Context, logger *slog.Logger, rec *models.CorrectionRecord, result outcome) (outcome, error) {
	if err := p.store.Release(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("failed to release correction", "error", err)
		return result, fmt.Errorf("failed to release %s: %w", rec.ID, err)
	}
	return result, nil
}

func payloadExplanation(payload models.Payload) string {
	switch p := payload.(type) {
	case *models.PressureCorrectionPayload:
		return p.Explanation
	case *models.TitleSeoCorrectionPayload:
		return p.Explanation
	}
	return ""
}

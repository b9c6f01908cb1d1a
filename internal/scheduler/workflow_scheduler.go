package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/autoguides/contentfix/internal/correction"
)

// Runner executes one workflow pass.
type Runner interface {
	Run(ctx context.Context, createLimit, processLimit int) correction.WorkflowReport
}

// Config controls how often the workflow runs.
type Config struct {
	Interval     time.Duration
	CreateLimit  int
	ProcessLimit int
}

// WorkflowScheduler runs the correction workflow on a ticker. When processing
// stops at the rate limit gate it arms a one-shot timer for the reported wait
// instead of sleeping through it.
type WorkflowScheduler struct {
	runner   Runner
	config   Config
	logger   *slog.Logger
	after    func(time.Duration) <-chan time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorkflowScheduler creates a new workflow scheduler
func NewWorkflowScheduler(runner Runner, config Config, logger *slog.Logger) *WorkflowScheduler {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowScheduler{
		runner:   runner,
		config:   config,
		logger:   logger,
		after:    time.After,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop and blocks until Stop or ctx cancellation.
func (s *WorkflowScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting correction workflow scheduler", "interval", s.config.Interval)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run once immediately on start
	retry := s.run(ctx, "startup")

	for {
		select {
		case <-ticker.C:
			retry = s.run(ctx, "interval")
		case <-retry:
			retry = s.run(ctx, "rate_limit_retry")
		case <-s.stopChan:
			s.logger.Info("Correction workflow scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Correction workflow scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler
func (s *WorkflowScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// run executes one pass and returns the retry channel to wait on, or nil.
func (s *WorkflowScheduler) run(ctx context.Context, trigger string) <-chan time.Time {
	if ctx.Err() != nil {
		return nil
	}

	report := s.runner.Run(ctx, s.config.CreateLimit, s.config.ProcessLimit)
	if !report.Succeeded() {
		s.logger.Warn("Scheduled workflow run reported errors",
			"trigger", trigger,
			"errors", report.Errors)
	}

	p := report.Processing
	if p == nil || !p.RateLimited() || p.WaitSeconds <= 0 {
		return nil
	}

	wait := time.Duration(p.WaitSeconds) * time.Second
	if wait >= s.config.Interval {
		// the next tick comes first anyway
		return nil
	}

	s.logger.Info("Rate limited, re-arming workflow",
		"wait_seconds", p.WaitSeconds,
		"skipped", p.Skipped)
	return s.after(wait)
}

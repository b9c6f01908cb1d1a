package correction

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"
)

// WorkflowObserver is told about every finished run.
type WorkflowObserver interface {
	ObserveWorkflow(report WorkflowReport)
}

// StepReport times one phase of a run.
type StepReport struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// WorkflowReport aggregates one workflow invocation.
type WorkflowReport struct {
	StartedAt  time.Time           `json:"started_at"`
	DurationMs int64               `json:"duration_ms"`
	Creation   *CreationCounters   `json:"creation,omitempty"`
	Processing *ProcessingCounters `json:"processing,omitempty"`
	Cleanup    *CleanupCounters    `json:"cleanup,omitempty"`
	CleanupRan bool                `json:"cleanup_ran"`
	Steps      []StepReport        `json:"steps"`
	Errors     []string            `json:"errors,omitempty"`
}

// Succeeded reports whether every step finished without error.
func (r WorkflowReport) Succeeded() bool { return len(r.Errors) == 0 }

// Rejected reports whether the run never started because another was in progress.
func (r WorkflowReport) Rejected() bool {
	return len(r.Steps) == 0 && len(r.Errors) == 1 && r.Errors[0] == ErrWorkflowRunning.Error()
}

// WorkflowConfig tunes the orchestrator.
type WorkflowConfig struct {
	CleanupChance float64
}

// Workflow composes creation, processing and occasional cleanup.
type Workflow struct {
	creator   *Creator
	processor *Processor
	cleaner   *Cleaner
	config    WorkflowConfig
	chance    func() float64
	now       func() time.Time
	observers []WorkflowObserver
	logger    *slog.Logger
	running   sync.Mutex
}

// NewWorkflow creates the orchestrator. A nil chance source uses math/rand.
func NewWorkflow(creator *Creator, processor *Processor, cleaner *Cleaner, config WorkflowConfig, chance func() float64, logger *slog.Logger, observers ...WorkflowObserver) *Workflow {
	if chance == nil {
		chance = rand.Float64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		creator:   creator,
		processor: processor,
		cleaner:   cleaner,
		config:    config,
		chance:    chance,
		now:       time.Now,
		observers: observers,
		logger:    logger,
	}
}

// Run executes creation then processing, and cleanup with the configured
// probability. It never panics and always returns a report; step failures are
// recorded in it. Only one run executes at a time.
func (w *Workflow) Run(ctx context.Context, createLimit, processLimit int) WorkflowReport {
	report := WorkflowReport{StartedAt: w.now()}

	if !w.running.TryLock() {
		report.Errors = append(report.Errors, ErrWorkflowRunning.Error())
		return report
	}
	defer w.running.Unlock()

	w.logger.Info("correction workflow started",
		"create_limit", createLimit,
		"process_limit", processLimit)

	w.step(&report, "creation", func() error {
		c := w.creator.CreateCorrections(ctx, createLimit)
		report.Creation = &c
		return c.Err
	})

	w.step(&report, "processing", func() error {
		p := w.processor.ProcessAvailable(ctx, processLimit)
		report.Processing = &p
		return p.Err
	})

	if w.chance() < w.config.CleanupChance {
		report.CleanupRan = true
		w.step(&report, "cleanup", func() error {
			c := w.cleaner.Cleanup(ctx)
			report.Cleanup = &c
			return c.Err
		})
	}

	return w.finish(report)
}

// RunCleanup runs only the cleanup phase, under the same run lock.
func (w *Workflow) RunCleanup(ctx context.Context) WorkflowReport {
	report := WorkflowReport{StartedAt: w.now()}

	if !w.running.TryLock() {
		report.Errors = append(report.Errors, ErrWorkflowRunning.Error())
		return report
	}
	defer w.running.Unlock()

	report.CleanupRan = true
	w.step(&report, "cleanup", func() error {
		c := w.cleaner.Cleanup(ctx)
		report.Cleanup = &c
		return c.Err
	})
	return w.finish(report)
}

func (w *Workflow) finish(report WorkflowReport) WorkflowReport {
	report.DurationMs = w.now().Sub(report.StartedAt).Milliseconds()

	w.logger.Info("correction workflow finished",
		"duration_ms", report.DurationMs,
		"cleanup_ran", report.CleanupRan,
		"errors", len(report.Errors))

	for _, o := range w.observers {
		o.ObserveWorkflow(report)
	}
	return report
}

// step runs fn, recording its duration and any error or panic.
func (w *Workflow) step(report *WorkflowReport, name string, fn func() error) {
	start := w.now()
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				w.logger.Error("workflow step panicked",
					"step", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		err = fn()
	}()

	step := StepReport{Name: name, DurationMs: w.now().Sub(start).Milliseconds()}
	if err != nil {
		step.Error = err.Error()
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
		w.logger.Error("workflow step failed", "step", name, "error", err)
	}
	report.Steps = append(report.Steps, step)
}

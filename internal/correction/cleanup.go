package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

// CleanerConfig holds the cleanup thresholds.
type CleanerConfig struct {
	Types      []models.CorrectionType
	StuckAfter time.Duration
	FailedTTL  time.Duration
}

// CleanupCounters summarises one cleanup pass.
type CleanupCounters struct {
	DuplicatesRemoved int      `json:"duplicates_removed"`
	StuckReset        int      `json:"stuck_reset"`
	FailedPurged      int      `json:"failed_purged"`
	Errors            []string `json:"errors,omitempty"`
	Err               error    `json:"-"`
}

// Cleaner repairs the record store: duplicates, stuck claims, stale failures.
type Cleaner struct {
	store  Store
	config CleanerConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewCleaner creates the cleanup phase.
func NewCleaner(store Store, config CleanerConfig, now func() time.Time, logger *slog.Logger) *Cleaner {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{store: store, config: config, now: now, logger: logger}
}

// Cleanup runs the three passes. They are independent: one failing does not
// stop the others, and running cleanup twice changes nothing the second time.
func (c *Cleaner) Cleanup(ctx context.Context) CleanupCounters {
	var counters CleanupCounters
	var errs []error

	passes := []struct {
		name string
		run  func(context.Context) (int, error)
		dst  *int
	}{
		{"duplicates", c.removeDuplicates, &counters.DuplicatesRemoved},
		{"stuck", c.resetStuck, &counters.StuckReset},
		{"failed", c.purgeFailed, &counters.FailedPurged},
	}
	for _, pass := range passes {
		n, err := pass.run(ctx)
		*pass.dst = n
		if err != nil {
			err = fmt.Errorf("%s pass: %w", pass.name, err)
			c.logger.Error("cleanup pass failed", "pass", pass.name, "error", err)
			errs = append(errs, err)
			counters.Errors = append(counters.Errors, err.Error())
		}
	}
	counters.Err = errors.Join(errs...)

	c.logger.Info("cleanup phase finished",
		"duplicates_removed", counters.DuplicatesRemoved,
		"stuck_reset", counters.StuckReset,
		"failed_purged", counters.FailedPurged)
	return counters
}

// removeDuplicates keeps the most recently created record of each pair.
func (c *Cleaner) removeDuplicates(ctx context.Context) (int, error) {
	groups, err := c.store.GroupDuplicates(ctx, c.config.Types)
	if err != nil {
		return 0, err
	}

	var doomed []string
	for _, g := range groups {
		c.logger.Warn("duplicate corrections found",
			"slug", g.ArticleSlug,
			"correction_type", g.CorrectionType,
			"count", len(g.IDs),
			"kept", g.IDs[0])
		doomed = append(doomed, g.IDs[1:]...)
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	return c.store.Delete(ctx, doomed)
}

func (c *Cleaner) resetStuck(ctx context.Context) (int, error) {
	if c.config.StuckAfter <= 0 {
		return 0, nil
	}
	stuck, err := c.store.FindStale(ctx, models.CorrectionStatusProcessing, StaleByUpdatedAt, c.now().Add(-c.config.StuckAfter))
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}
	for _, rec := range stuck {
		c.logger.Warn("resetting stuck correction",
			"correction_id", rec.ID,
			"slug", rec.ArticleSlug,
			"updated_at", rec.UpdatedAt)
	}
	return c.store.ResetToPending(ctx, recordIDs(stuck))
}

func (c *Cleaner) purgeFailed(ctx context.Context) (int, error) {
	if c.config.FailedTTL <= 0 {
		return 0, nil
	}
	failed, err := c.store.FindStale(ctx, models.CorrectionStatusFailed, StaleByCreatedAt, c.now().Add(-c.config.FailedTTL))
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}
	return c.store.Delete(ctx, recordIDs(failed))
}

func recordIDs(records []models.CorrectionRecord) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}

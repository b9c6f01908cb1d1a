package correction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

// justifications are the notes written on newly created records.
var justifications = map[models.CorrectionType]string{
	models.CorrectionTypePressureFix:  "Validator flagged inconsistent or implausible tire pressure data",
	models.CorrectionTypeTitleYearFix: "Validator flagged a model year mismatch in the title or SEO fields",
}

// CreatorConfig scopes the creation scan.
type CreatorConfig struct {
	Types  []models.CorrectionType
	Domain string
	Status string
	// RecreateCooldown is how long a completed or no_changes_needed record
	// keeps blocking a new one for the same pair. Zero or less never recreates.
	RecreateCooldown time.Duration
}

// CreationCounters summarises one creation pass.
type CreationCounters struct {
	Scanned             int                           `json:"scanned"`
	Created             int                           `json:"created"`
	Recreated           int                           `json:"recreated"`
	AlreadyExists       int                           `json:"already_exists"`
	SkippedNoCorrection int                           `json:"skipped_no_correction"`
	ByPriority          map[models.Priority]int       `json:"by_priority"`
	ByType              map[models.CorrectionType]int `json:"by_type"`
	Err                 error                         `json:"-"`
}

// Creator finds articles that need correcting and queues records for them.
type Creator struct {
	store     Store
	articles  ArticleStore
	validator Validator
	config    CreatorConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewCreator creates the creation phase.
func NewCreator(store Store, articles ArticleStore, validator Validator, config CreatorConfig, now func() time.Time, logger *slog.Logger) *Creator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.Types) == 0 {
		config.Types = models.AllCorrectionTypes()
	}
	return &Creator{
		store:     store,
		articles:  articles,
		validator: validator,
		config:    config,
		now:       now,
		logger:    logger,
	}
}

// recreateBefore is the cut-off for the recreation rule. The zero time means
// nothing is ever old enough.
func (c *Creator) recreateBefore() time.Time {
	if c.config.RecreateCooldown <= 0 {
		return time.Time{}
	}
	return c.now().Add(-c.config.RecreateCooldown)
}

// CreateCorrections scans up to limit candidate articles. A store or validator
// failure stops the pass; the counters gathered so far are returned with Err set.
func (c *Creator) CreateCorrections(ctx context.Context, limit int) CreationCounters {
	counters := CreationCounters{
		ByPriority: make(map[models.Priority]int),
		ByType:     make(map[models.CorrectionType]int),
	}
	cutoff := c.recreateBefore()

	excluded, err := c.store.ExcludedSlugs(ctx, c.config.Types, cutoff)
	if err != nil {
		counters.Err = fmt.Errorf("failed to load existing corrections: %w", err)
		return counters
	}

	candidates, err := c.articles.ListCandidates(ctx, models.ArticleFilter{
		Domain:       c.config.Domain,
		Status:       c.config.Status,
		ExcludeSlugs: excluded,
		Limit:        limit,
	})
	if err != nil {
		counters.Err = fmt.Errorf("failed to list candidate articles: %w", err)
		return counters
	}

	c.logger.Info("scanning articles for corrections",
		"candidates", len(candidates),
		"excluded", len(excluded),
		"limit", limit)

	for _, article := range candidates {
		if err := ctx.Err(); err != nil {
			counters.Err = err
			return counters
		}
		counters.Scanned++

		verdict, err := c.validator.Validate(ctx, article)
		if err != nil {
			counters.Err = fmt.Errorf("%w: %s: %w", ErrValidationUnavailable, article.Slug, err)
			return counters
		}
		if verdict == nil || !verdict.NeedsAnyCorrection {
			counters.SkippedNoCorrection++
			continue
		}

		for _, defect := range verdict.Defects() {
			if !containsType(c.config.Types, defect.Type) {
				continue
			}
			if err := c.createOne(ctx, article, defect, verdict.OverallPriority, cutoff, &counters); err != nil {
				counters.Err = err
				return counters
			}
		}
	}

	c.logger.Info("creation phase finished",
		"scanned", counters.Scanned,
		"created", counters.Created,
		"already_exists", counters.AlreadyExists,
		"skipped_no_correction", counters.SkippedNoCorrection)
	return counters
}

func (c *Creator) createOne(ctx context.Context, article models.Article, defect models.Defect, priority models.Priority, cutoff time.Time, counters *CreationCounters) error {
	exists, err := c.store.Exists(ctx, article.Slug, defect.Type)
	if err != nil {
		return fmt.Errorf("failed to check existing %s for %s: %w", defect.Type, article.Slug, err)
	}

	recreated := false
	if exists {
		latest, err := c.store.Latest(ctx, article.Slug, defect.Type)
		if err != nil {
			return fmt.Errorf("failed to load latest %s for %s: %w", defect.Type, article.Slug, err)
		}
		if !IsRecreatable(latest, cutoff) {
			counters.AlreadyExists++
			return nil
		}
		recreated = true
	}

	if priority == "" {
		priority = models.PriorityMedium
	}

	rec, err := c.store.Create(ctx, article.Slug, defect.Type,
		models.SnapshotArticle(article, defect.Details, priority), justifications[defect.Type])
	if err != nil {
		return fmt.Errorf("failed to create %s for %s: %w", defect.Type, article.Slug, err)
	}

	counters.Created++
	counters.ByPriority[priority]++
	counters.ByType[defect.Type]++
	if recreated {
		counters.Recreated++
	}

	c.logger.Info("correction queued",
		"correction_id", rec.ID,
		"slug", article.Slug,
		"correction_type", defect.Type,
		"priority", priority,
		"recreated", recreated)
	return nil
}

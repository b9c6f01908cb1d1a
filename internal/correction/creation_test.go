package correction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

func newTestCreator(store Store, articles ArticleStore, validator Validator) *Creator {
	return NewCreator(store, articles, validator, CreatorConfig{
		Domain:           "tire-pressure",
		Status:           "published",
		RecreateCooldown: 30 * 24 * time.Hour,
	}, fixedNow, nil)
}

func TestCreateCorrectionsNoSpuriousCreation(t *testing.T) {
	store := NewMemoryStore(fixedNow)
	articles := NewMemoryArticleStore(pressureArticle("fine-article"))
	validator := &stubValidator{verdicts: map[string]*models.ValidationResult{
		// flags set but overall verdict says no
		"fine-article": {NeedsAnyCorrection: false, NeedsPressureCorrection: true},
	}}

	counters := newTestCreator(store, articles, validator).CreateCorrections(context.Background(), 10)
	if counters.Err != nil {
		t.Fatalf("unexpected error: %v", counters.Err)
	}
	if counters.Created != 0 || counters.SkippedNoCorrection != 1 {
		t.Errorf("unexpected counters: %+v", counters)
	}

	counts, _ := store.CountByStatus(context.Background())
	if len(counts) != 0 {
		t.Errorf("expected no records, got %v", counts)
	}
}

func TestCreateCorrectionsQueuesEachDefect(t *testing.T) {
	store := NewMemoryStore(fixedNow)
	other := pressureArticle("other-domain")
	other.Domain = "oil-change"
	articles := NewMemoryArticleStore(pressureArticle("both-defects"), other)
	validator := &stubValidator{verdicts: map[string]*models.ValidationResult{
		"both-defects": {
			NeedsAnyCorrection:      true,
			NeedsPressureCorrection: true,
			NeedsTitleCorrection:    true,
			TitleDetails:            map[string]any{"title_year": 2021},
			OverallPriority:         models.PriorityLow,
		},
		"other-domain": pressureVerdict(),
	}}

	counters := newTestCreator(store, articles, validator).CreateCorrections(context.Background(), 10)
	if counters.Err != nil {
		t.Fatalf("unexpected error: %v", counters.Err)
	}
	if counters.Scanned != 1 {
		t.Errorf("expected domain filter to leave 1 candidate, scanned %d", counters.Scanned)
	}
	if counters.Created != 2 || counters.ByPriority[models.PriorityLow] != 2 {
		t.Errorf("unexpected counters: %+v", counters)
	}

	recs, _ := store.List(context.Background(), models.CorrectionFilter{Slug: "both-defects", Type: models.CorrectionTypeTitleYearFix})
	if len(recs) != 1 {
		t.Fatalf("expected one title record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Notes != justifications[models.CorrectionTypeTitleYearFix] {
		t.Errorf("unexpected note %q", rec.Notes)
	}
	if rec.OriginalData.ValidationDetails["title_year"] != 2021 {
		t.Errorf("expected title details in snapshot, got %v", rec.OriginalData.ValidationDetails)
	}
	if rec.OriginalData.Title != "2023 Toyota Corolla Tire Pressure" {
		t.Errorf("snapshot title missing: %q", rec.OriginalData.Title)
	}
}

func TestCreateCorrectionsSkipsExisting(t *testing.T) {
	store := NewMemoryStore(fixedNow)
	articles := NewMemoryArticleStore(pressureArticle("has-record"))
	validator := &stubValidator{verdicts: map[string]*models.ValidationResult{"has-record": pressureVerdict()}}
	seedRecord(store, "has-record", models.CorrectionTypePressureFix, models.CorrectionStatusFailed, testNow.Add(-time.Hour), testNow.Add(-time.Hour))

	creator := newTestCreator(store, articles, validator)
	counters := creator.CreateCorrections(context.Background(), 10)

	if counters.Created != 0 || counters.AlreadyExists != 1 {
		t.Errorf("expected existing record to block creation, got %+v", counters)
	}
	again := creator.CreateCorrections(context.Background(), 10)
	if again.Created != 0 {
		t.Errorf("expected repeat run to create nothing, got %+v", again)
	}
}

func TestCreateCorrectionsRecreatesAfterCooldown(t *testing.T) {
	store := NewMemoryStore(fixedNow)
	articles := NewMemoryArticleStore(pressureArticle("old-fix"), pressureArticle("recent-fix"))
	validator := &stubValidator{verdicts: map[string]*models.ValidationResult{
		"old-fix":    pressureVerdict(),
		"recent-fix": pressureVerdict(),
	}}
	old := testNow.Add(-45 * 24 * time.Hour)
	seedRecord(store, "old-fix", models.CorrectionTypePressureFix, models.CorrectionStatusCompleted, old, old)
	recent := testNow.Add(-24 * time.Hour)
	seedRecord(store, "recent-fix", models.CorrectionTypePressureFix, models.CorrectionStatusCompleted, recent, recent)

	counters := newTestCreator(store, articles, validator).CreateCorrections(context.Background(), 10)
	if counters.Created != 1 || counters.Recreated != 1 {
		t.Errorf("expected only the old fix to be recreated, got %+v", counters)
	}

	recs, _ := store.List(context.Background(), models.CorrectionFilter{Slug: "old-fix"})
	if len(recs) != 2 || recs[0].Status != models.CorrectionStatusPending {
		t.Errorf("expected new pending record next to the old one, got %+v", recs)
	}
}

func TestCreateCorrectionsValidatorUnavailable(t *testing.T) {
	store := NewMemoryStore(fixedNow)
	articles := NewMemoryArticleStore(pressureArticle("a"), pressureArticle("b"))
	validator := &stubValidator{err: errors.New("validator timeout")}

	counters := newTestCreator(store, articles, validator).CreateCorrections(context.Background(), 10)
	if !errors.Is(counters.Err, ErrValidationUnavailable) {
		t.Fatalf("expected ErrValidationUnavailable, got %v", counters.Err)
	}
	if validator.calls != 1 {
		t.Errorf("expected phase to abort after first failure, got %d calls", validator.calls)
	}
	if counters.Scanned != 1 {
		t.Errorf("expected partial counters, got %+v", counters)
	}
}

func TestCreateCorrectionsRespectsLimitAndTypes(t *testing.T) {
	store := NewMemoryStore(fixedNow)
	articles := NewMemoryArticleStore(pressureArticle("a"), pressureArticle("b"), pressureArticle("c"))
	verdict := &models.ValidationResult{
		NeedsAnyCorrection:      true,
		NeedsPressureCorrection: true,
		NeedsTitleCorrection:    true,
		OverallPriority:         models.PriorityMedium,
	}
	validator := &stubValidator{verdicts: map[string]*models.ValidationResult{"a": verdict, "b": verdict, "c": verdict}}

	creator := NewCreator(store, articles, validator, CreatorConfig{
		Types: []models.CorrectionType{models.CorrectionTypeTitleYearFix},
	}, fixedNow, nil)
	counters := creator.CreateCorrections(context.Background(), 2)

	if counters.Scanned != 2 || counters.Created != 2 {
		t.Errorf("unexpected counters: %+v", counters)
	}
	if counters.ByType[models.CorrectionTypePressureFix] != 0 {
		t.Errorf("pressure defects must be ignored when not configured: %+v", counters.ByType)
	}
}

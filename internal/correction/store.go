package correction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

// StaleField names the timestamp a staleness query compares against.
type StaleField string

const (
	StaleByUpdatedAt StaleField = "updated_at"
	StaleByCreatedAt StaleField = "created_at"
)

// DuplicateGroup is a (slug, type) pair with more than one record. IDs are
// ordered newest-created first.
type DuplicateGroup struct {
	ArticleSlug    string
	CorrectionType models.CorrectionType
	IDs            []string
}

// Store persists correction records. Every query is a single-collection
// filter/sort/limit so it maps onto a document store as well as a table.
type Store interface {
	// Create inserts a pending record.
	Create(ctx context.Context, slug string, correctionType models.CorrectionType, original models.OriginalData, note string) (*models.CorrectionRecord, error)

	// Exists checks if any record exists for the pair.
	Exists(ctx context.Context, slug string, correctionType models.CorrectionType) (bool, error)

	// Latest returns the most recently created record for the pair, or nil.
	Latest(ctx context.Context, slug string, correctionType models.CorrectionType) (*models.CorrectionRecord, error)

	// ExcludedSlugs returns slugs that hold a blocking record for every one of
	// the given types. A record blocks unless it is completed or
	// no_changes_needed and was last updated before recreateBefore.
	ExcludedSlugs(ctx context.Context, types []models.CorrectionType, recreateBefore time.Time) ([]string, error)

	// FindPending returns pending records oldest-created first.
	FindPending(ctx context.Context, types []models.CorrectionType, limit int) ([]models.CorrectionRecord, error)

	// MarkProcessing claims a pending record. It fails with ErrClaimConflict
	// when the stored status or version differs from rec.
	MarkProcessing(ctx context.Context, rec *models.CorrectionRecord) error

	MarkCompleted(ctx context.Context, rec *models.CorrectionRecord, resultData json.RawMessage) error
	MarkFailed(ctx context.Context, rec *models.CorrectionRecord, reason string) error
	MarkNoChanges(ctx context.Context, rec *models.CorrectionRecord, resultData json.RawMessage, reason string) error

	// Release returns a processing record to pending without recording an outcome.
	Release(ctx context.Context, rec *models.CorrectionRecord) error

	GroupDuplicates(ctx context.Context, types []models.CorrectionType) ([]DuplicateGroup, error)
	FindStale(ctx context.Context, status models.CorrectionStatus, field StaleField, before time.Time) ([]models.CorrectionRecord, error)

	// ResetToPending moves the given processing records back to pending.
	ResetToPending(ctx context.Context, ids []string) (int, error)
	Delete(ctx context.Context, ids []string) (int, error)

	CountByStatus(ctx context.Context) (map[models.CorrectionStatus]int, error)
	List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRecord, error)
}

// ArticleStore is the external article collection.
type ArticleStore interface {
	// FindBySlug returns nil when the article does not exist.
	FindBySlug(ctx context.Context, slug string) (*models.Article, error)

	// Update writes only the given fields.
	Update(ctx context.Context, slug string, updates []models.FieldUpdate) error

	// ListCandidates returns articles matching the filter, oldest update first.
	ListCandidates(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error)
}

// Validator decides whether an article needs correcting.
type Validator interface {
	Validate(ctx context.Context, article models.Article) (*models.ValidationResult, error)
}

func containsType(types []models.CorrectionType, t models.CorrectionType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsRecreatable reports whether a new record may be created next to rec.
// Pending, processing and failed records always block; a completed or
// no_changes_needed record stops blocking once it was last updated before
// recreateBefore.
func IsRecreatable(rec *models.CorrectionRecord, recreateBefore time.Time) bool {
	if rec == nil {
		return true
	}
	if !rec.Status.HasResult() {
		return false
	}
	return rec.UpdatedAt.Before(recreateBefore)
}

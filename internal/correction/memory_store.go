package correction

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/autoguides/contentfix/internal/models"
	"github.com/google/uuid"
)

// MemoryStore implements an in-memory correction store for testing/development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.CorrectionRecord
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory correction store. A nil now uses the
// wall clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: make(map[string]models.CorrectionRecord),
		now:     now,
	}
}

// Put stores a record verbatim, bypassing lifecycle checks. Used to seed fixtures.
func (s *MemoryStore) Put(rec models.CorrectionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	s.records[rec.ID] = rec
}

// Get returns a copy of the record with the given ID.
func (s *MemoryStore) Get(id string) (models.CorrectionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *MemoryStore) Create(ctx context.Context, slug string, correctionType models.CorrectionType, original models.OriginalData, note string) (*models.CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := models.CorrectionRecord{
		ID:             uuid.New().String(),
		ArticleSlug:    slug,
		CorrectionType: correctionType,
		Status:         models.CorrectionStatusPending,
		OriginalData:   original,
		Notes:          note,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.records[rec.ID] = rec
	return &rec, nil
}

func (s *MemoryStore) Exists(ctx context.Context, slug string, correctionType models.CorrectionType) (bool, error) {
	latest, err := s.Latest(ctx, slug, correctionType)
	return latest != nil, err
}

func (s *MemoryStore) Latest(ctx context.Context, slug string, correctionType models.CorrectionType) (*models.CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.CorrectionRecord
	for _, rec := range s.records {
		if rec.ArticleSlug != slug || rec.CorrectionType != correctionType {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			r := rec
			latest = &r
		}
	}
	return latest, nil
}

func (s *MemoryStore) ExcludedSlugs(ctx context.Context, types []models.CorrectionType, recreateBefore time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocked := make(map[string]map[models.CorrectionType]bool)
	for _, rec := range s.records {
		if !containsType(types, rec.CorrectionType) || IsRecreatable(&rec, recreateBefore) {
			continue
		}
		if blocked[rec.ArticleSlug] == nil {
			blocked[rec.ArticleSlug] = make(map[models.CorrectionType]bool)
		}
		blocked[rec.ArticleSlug][rec.CorrectionType] = true
	}

	var slugs []string
	for slug, byType := range blocked {
		if len(byType) >= len(types) {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (s *MemoryStore) FindPending(ctx context.Context, types []models.CorrectionType, limit int) ([]models.CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.CorrectionRecord
	for _, rec := range s.records {
		if rec.Status == models.CorrectionStatusPending && containsType(types, rec.CorrectionType) {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// transition applies a status change guarded by status and version checks,
// and copies the stored result back into rec.
func (s *MemoryStore) transition(rec *models.CorrectionRecord, to models.CorrectionStatus, mutate func(*models.CorrectionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	if stored.Version != rec.Version || stored.Status != rec.Status {
		return fmt.Errorf("%w: record %s is %s v%d, expected %s v%d",
			ErrClaimConflict, rec.ID, stored.Status, stored.Version, rec.Status, rec.Version)
	}
	if !models.CanTransition(stored.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, stored.Status, to)
	}

	stored.Status = to
	stored.Version++
	stored.UpdatedAt = s.now()
	if mutate != nil {
		mutate(&stored)
	}
	s.records[stored.ID] = stored
	*rec = stored
	return nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, rec *models.CorrectionRecord) error {
	return s.transition(rec, models.CorrectionStatusProcessing, nil)
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, rec *models.CorrectionRecord, resultData json.RawMessage) error {
	return s.transition(rec, models.CorrectionStatusCompleted, func(r *models.CorrectionRecord) {
		r.ResultData = resultData
		r.FailureReason = ""
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, rec *models.CorrectionRecord, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown failure"
	}
	return s.transition(rec, models.CorrectionStatusFailed, func(r *models.CorrectionRecord) {
		r.ResultData = nil
		r.FailureReason = reason
	})
}

func (s *MemoryStore) MarkNoChanges(ctx context.Context, rec *models.CorrectionRecord, resultData json.RawMessage, reason string) error {
	return s.transition(rec, models.CorrectionStatusNoChangesNeeded, func(r *models.CorrectionRecord) {
		r.ResultData = resultData
		r.FailureReason = ""
		r.Notes = AppendNote(r.Notes, reason)
	})
}

func (s *MemoryStore) Release(ctx context.Context, rec *models.CorrectionRecord) error {
	return s.transition(rec, models.CorrectionStatusPending, nil)
}

func (s *MemoryStore) GroupDuplicates(ctx context.Context, types []models.CorrectionType) ([]DuplicateGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type pairKey struct {
		slug string
		typ  models.CorrectionType
	}
	byPair := make(map[pairKey][]models.CorrectionRecord)
	for _, rec := range s.records {
		if !containsType(types, rec.CorrectionType) {
			continue
		}
		key := pairKey{rec.ArticleSlug, rec.CorrectionType}
		byPair[key] = append(byPair[key], rec)
	}

	var groups []DuplicateGroup
	for key, recs := range byPair {
		if len(recs) < 2 {
			continue
		}
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		})
		ids := make([]string, len(recs))
		for i, rec := range recs {
			ids[i] = rec.ID
		}
		groups = append(groups, DuplicateGroup{ArticleSlug: key.slug, CorrectionType: key.typ, IDs: ids})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].ArticleSlug != groups[j].ArticleSlug {
			return groups[i].ArticleSlug < groups[j].ArticleSlug
		}
		return groups[i].CorrectionType < groups[j].CorrectionType
	})
	return groups, nil
}

func (s *MemoryStore) FindStale(ctx context.Context, status models.CorrectionStatus, field StaleField, before time.Time) ([]models.CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []models.CorrectionRecord
	for _, rec := range s.records {
		if rec.Status != status {
			continue
		}
		ts := rec.UpdatedAt
		switch field {
		case StaleByUpdatedAt:
		case StaleByCreatedAt:
			ts = rec.CreatedAt
		default:
			return nil, fmt.Errorf("unsupported stale field %q", field)
		}
		if ts.Before(before) {
			stale = append(stale, rec)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	return stale, nil
}

func (s *MemoryStore) ResetToPending(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	reset := 0
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || rec.Status != models.CorrectionStatusProcessing {
			continue
		}
		rec.Status = models.CorrectionStatusPending
		rec.Version++
		rec.UpdatedAt = now
		s.records[id] = rec
		reset++
	}
	return reset, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[models.CorrectionStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.CorrectionStatus]int)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CorrectionRecord
	for _, rec := range s.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Type != "" && rec.CorrectionType != filter.Type {
			continue
		}
		if filter.Slug != "" && rec.ArticleSlug != filter.Slug {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// AppendNote adds reason to notes on a new line.
func AppendNote(notes, reason string) string {
	if reason == "" {
		return notes
	}
	if notes == "" {
		return reason
	}
	return notes + "\n" + reason
}

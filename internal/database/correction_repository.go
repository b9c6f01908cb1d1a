package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const correctionColumns = `id, article_slug, correction_type, status, original_data, result_data,
	failure_reason, notes, version, created_at, updated_at`

// PostgresCorrectionRepository implements correction.Store on the corrections table.
type PostgresCorrectionRepository struct {
	db *sql.DB
}

// NewPostgresCorrectionRepository creates a new PostgreSQL correction repository.
func NewPostgresCorrectionRepository(db *sql.DB) *PostgresCorrectionRepository {
	return &PostgresCorrectionRepository{db: db}
}

var _ correction.Store = (*PostgresCorrectionRepository)(nil)

func (r *PostgresCorrectionRepository) Create(ctx context.Context, slug string, correctionType models.CorrectionType, original models.OriginalData, note string) (*models.CorrectionRecord, error) {
	originalJSON, err := json.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal original data: %w", err)
	}

	rec := models.CorrectionRecord{
		ID:             uuid.New().String(),
		ArticleSlug:    slug,
		CorrectionType: correctionType,
		Status:         models.CorrectionStatusPending,
		OriginalData:   original,
		Notes:          note,
		Version:        1,
	}

	query := `
		INSERT INTO corrections (id, article_slug, correction_type, status, original_data, notes, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		rec.ID, rec.ArticleSlug, string(rec.CorrectionType), string(rec.Status),
		originalJSON, rec.Notes, rec.Version,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert correction: %w", err)
	}
	return &rec, nil
}

func (r *PostgresCorrectionRepository) Exists(ctx context.Context, slug string, correctionType models.CorrectionType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM corrections WHERE article_slug = $1 AND correction_type = $2)`,
		slug, string(correctionType),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check correction existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresCorrectionRepository) Latest(ctx context.Context, slug string, correctionType models.CorrectionType) (*models.CorrectionRecord, error) {
	query := `SELECT ` + correctionColumns + `
		FROM corrections
		WHERE article_slug = $1 AND correction_type = $2
		ORDER BY created_at DESC
		LIMIT 1`

	rec, err := scanCorrection(r.db.QueryRowContext(ctx, query, slug, string(correctionType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest correction: %w", err)
	}
	return rec, nil
}

func (r *PostgresCorrectionRepository) ExcludedSlugs(ctx context.Context, types []models.CorrectionType, recreateBefore time.Time) ([]string, error) {
	if len(types) == 0 {
		types = models.AllCorrectionTypes()
	}

	// A record stops blocking once it has a result and was last touched
	// before the cut-off.
	query := `
		SELECT article_slug
		FROM corrections
		WHERE correction_type = ANY($1)
		  AND (status NOT IN ('completed', 'no_changes_needed') OR updated_at >= $2)
		GROUP BY article_slug
		HAVING COUNT(DISTINCT correction_type) >= $3
		ORDER BY article_slug
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(typeStrings(types)), recreateBefore, len(types))
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

func (r *PostgresCorrectionRepository) FindPending(ctx context.Context, types []models.CorrectionType, limit int) ([]models.CorrectionRecord, error) {
	if len(types) == 0 {
		types = models.AllCorrectionTypes()
	}

	query := `SELECT ` + correctionColumns + `
		FROM corrections
		WHERE status = 'pending' AND correction_type = ANY($1)
		ORDER BY created_at ASC`
	args := []interface{}{pq.Array(typeStrings(types))}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	return r.queryCorrections(ctx, query, args...)
}

// transition writes next over rec when the stored row still has rec's status
// and version. The returned row replaces rec.
func (r *PostgresCorrectionRepository) transition(ctx context.Context, rec *models.CorrectionRecord, to models.CorrectionStatus, mutate func(*models.CorrectionRecord)) error {
	if !models.CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: %s -> %s", correction.ErrInvalidTransition, rec.Status, to)
	}

	next := *rec
	next.Status = to
	if mutate != nil {
		mutate(&next)
	}

	query := `
		UPDATE corrections
		SET status = $1, result_data = $2, failure_reason = $3, notes = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND status = $6 AND version = $7
		RETURNING version, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		string(next.Status), nullJSON(next.ResultData), nullString(next.FailureReason), next.Notes,
		rec.ID, string(rec.Status), rec.Version,
	).Scan(&next.Version, &next.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.conflict(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("failed to update correction %s: %w", rec.ID, err)
	}

	*rec = next
	return nil
}

// conflict explains why a guarded update matched nothing.
func (r *PostgresCorrectionRepository) conflict(ctx context.Context, rec *models.CorrectionRecord) error {
	var (
		status  string
		version int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT status, version FROM corrections WHERE id = $1`, rec.ID,
	).Scan(&status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", correction.ErrNotFound, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read correction %s: %w", rec.ID, err)
	}
	return fmt.Errorf("%w: record %s is %s v%d, expected %s v%d",
		correction.ErrClaimConflict, rec.ID, status, version, rec.Status, rec.Version)
}

func (r *PostgresCorrectionRepository) MarkProcessing(ctx context.Context, rec *models.CorrectionRecord) error {
	return r.transition(ctx, rec, models.CorrectionStatusProcessing, nil)
}

func (r *PostgresCorrectionRepository) MarkCompleted(ctx context.Context, rec *models.CorrectionRecord, resultData json.RawMessage) error {
	return r.transition(ctx, rec, models.CorrectionStatusCompleted, func(next *models.CorrectionRecord) {
		next.ResultData = resultData
		next.FailureReason = ""
	})
}

func (r *PostgresCorrectionRepository) MarkFailed(ctx context.Context, rec *models.CorrectionRecord, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown failure"
	}
	return r.transition(ctx, rec, models.CorrectionStatusFailed, func(next *models.CorrectionRecord) {
		next.ResultData = nil
		next.FailureReason = reason
	})
}

func (r *PostgresCorrectionRepository) MarkNoChanges(ctx context.Context, rec *models.CorrectionRecord, resultData json.RawMessage, reason string) error {
	return r.transition(ctx, rec, models.CorrectionStatusNoChangesNeeded, func(next *models.CorrectionRecord) {
		next.ResultData = resultData
		next.FailureReason = ""
		next.Notes = correction.AppendNote(next.Notes, reason)
	})
}

func (r *PostgresCorrectionRepository) Release(ctx context.Context, rec *models.CorrectionRecord) error {
	return r.transition(ctx, rec, models.CorrectionStatusPending, nil)
}

func (r *PostgresCorrectionRepository) GroupDuplicates(ctx context.Context, types []models.CorrectionType) ([]correction.DuplicateGroup, error) {
	if len(types) == 0 {
		types = models.AllCorrectionTypes()
	}

	query := `
		SELECT article_slug, correction_type, array_agg(id::text ORDER BY created_at DESC)
		FROM corrections
		WHERE correction_type = ANY($1)
		GROUP BY article_slug, correction_type
		HAVING COUNT(*) > 1
		ORDER BY article_slug, correction_type
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(typeStrings(types)))
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate corrections: %w", err)
	}
	defer rows.Close()

	var groups []correction.DuplicateGroup
	for rows.Next() {
		var (
			group correction.DuplicateGroup
			typ   string
			ids   pq.StringArray
		)
		if err := rows.Scan(&group.ArticleSlug, &typ, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate group: %w", err)
		}
		group.CorrectionType = models.CorrectionType(typ)
		group.IDs = []string(ids)
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *PostgresCorrectionRepository) FindStale(ctx context.Context, status models.CorrectionStatus, field correction.StaleField, before time.Time) ([]models.CorrectionRecord, error) {
	var column string
	switch field {
	case correction.StaleByUpdatedAt:
		column = "updated_at"
	case correction.StaleByCreatedAt:
		column = "created_at"
	default:
		return nil, fmt.Errorf("unsupported stale field %q", field)
	}

	query := `SELECT ` + correctionColumns + `
		FROM corrections
		WHERE status = $1 AND ` + column + ` < $2
		ORDER BY created_at ASC`
	return r.queryCorrections(ctx, query, string(status), before)
}

func (r *PostgresCorrectionRepository) ResetToPending(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE corrections
		SET status = 'pending', version = version + 1, updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'processing'
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to reset corrections: %w", err)
	}
	return rowsAffected(result)
}

func (r *PostgresCorrectionRepository) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM corrections WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete corrections: %w", err)
	}
	return rowsAffected(result)
}

func (r *PostgresCorrectionRepository) CountByStatus(ctx context.Context) (map[models.CorrectionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM corrections GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.CorrectionStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[models.CorrectionStatus(status)] = count
	}
	return counts, rows.Err()
}

func (r *PostgresCorrectionRepository) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRecord, error) {
	query := `SELECT ` + correctionColumns + ` FROM corrections WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND correction_type = $%d", argPos)
		args = append(args, string(filter.Type))
		argPos++
	}
	if filter.Slug != "" {
		query += fmt.Sprintf(" AND article_slug = $%d", argPos)
		args = append(args, filter.Slug)
		argPos++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	return r.queryCorrections(ctx, query, args...)
}

func (r *PostgresCorrectionRepository) queryCorrections(ctx context.Context, query string, args ...interface{}) ([]models.CorrectionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var records []models.CorrectionRecord
	for rows.Next() {
		rec, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corrections: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCorrection(row rowScanner) (*models.CorrectionRecord, error) {
	var (
		rec           models.CorrectionRecord
		typ, status   string
		originalJSON  []byte
		resultJSON    []byte
		failureReason sql.NullString
	)

	err := row.Scan(
		&rec.ID,
		&rec.ArticleSlug,
		&typ,
		&status,
		&originalJSON,
		&resultJSON,
		&failureReason,
		&rec.Notes,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CorrectionType = models.CorrectionType(typ)
	rec.Status = models.CorrectionStatus(status)
	if len(originalJSON) > 0 {
		if err := json.Unmarshal(originalJSON, &rec.OriginalData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal original data: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		rec.ResultData = json.RawMessage(resultJSON)
	}
	if failureReason.Valid {
		rec.FailureReason = failureReason.String
	}
	return &rec, nil
}

func typeStrings(types []models.CorrectionType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}

func rowsAffected(result sql.Result) (int, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/models"
	"github.com/lib/pq"
)

const contentPathPrefix = "content."

// PostgresArticleRepository implements correction.ArticleStore on the
// articles table. Everything under content lives in one JSONB column.
type PostgresArticleRepository struct {
	db *sql.DB
}

// NewPostgresArticleRepository creates a new PostgreSQL article repository.
func NewPostgresArticleRepository(db *sql.DB) *PostgresArticleRepository {
	return &PostgresArticleRepository{db: db}
}

var _ correction.ArticleStore = (*PostgresArticleRepository)(nil)

func (r *PostgresArticleRepository) FindBySlug(ctx context.Context, slug string) (*models.Article, error) {
	query := `
		SELECT slug, domain, status, title, content, updated_at
		FROM articles
		WHERE slug = $1
	`
	article, err := scanArticle(r.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %s: %w", slug, err)
	}
	return article, nil
}

// Update writes each field in place. Content paths become nested jsonb_set
// calls so sibling keys are never rewritten.
func (r *PostgresArticleRepository) Update(ctx context.Context, slug string, updates []models.FieldUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query, args, err := buildArticleUpdate(slug, updates)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", slug, err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: article %s", correction.ErrNotFound, slug)
	}
	return nil
}

func buildArticleUpdate(slug string, updates []models.FieldUpdate) (string, []interface{}, error) {
	type contentSet struct {
		keys  []string
		value string
	}
	var (
		sets     []string
		args     []interface{}
		content  []contentSet
		parents  [][]string
		seen     = map[string]bool{}
		document = "content"
	)
	next := func(v interface{}) int {
		args = append(args, v)
		return len(args)
	}

	for _, u := range updates {
		switch {
		case u.Path == "title":
			title, ok := u.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("title update must be a string, got %T", u.Value)
			}
			sets = append(sets, fmt.Sprintf("title = $%d", next(title)))
		case strings.HasPrefix(u.Path, contentPathPrefix) && len(u.Path) > len(contentPathPrefix):
			value, err := json.Marshal(u.Value)
			if err != nil {
				return "", nil, fmt.Errorf("failed to marshal %s: %w", u.Path, err)
			}
			keys := strings.Split(strings.TrimPrefix(u.Path, contentPathPrefix), ".")
			for i := 1; i < len(keys); i++ {
				prefix := strings.Join(keys[:i], ".")
				if !seen[prefix] {
					seen[prefix] = true
					parents = append(parents, keys[:i])
				}
			}
			content = append(content, contentSet{keys: keys, value: string(value)})
		default:
			return "", nil, fmt.Errorf("unsupported article field %q", u.Path)
		}
	}

	// jsonb_set only creates the last key of a path, so every intermediate
	// object is materialised first, shortest prefix first. Existing objects
	// are read from the stored column and kept as they are.
	sort.SliceStable(parents, func(i, j int) bool { return len(parents[i]) < len(parents[j]) })
	for _, keys := range parents {
		pathArg := next(pq.Array(keys))
		document = fmt.Sprintf("jsonb_set(%s, $%d::text[], CASE WHEN jsonb_typeof(content #> $%d::text[]) = 'object' "+
			"THEN content #> $%d::text[] ELSE '{}'::jsonb END, true)", document, pathArg, pathArg, pathArg)
	}
	for _, c := range content {
		pathArg := next(pq.Array(c.keys))
		valueArg := next(c.value)
		document = fmt.Sprintf("jsonb_set(%s, $%d::text[], $%d::jsonb, true)", document, pathArg, valueArg)
	}

	if len(content) > 0 {
		sets = append(sets, "content = "+document)
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE articles SET %s WHERE slug = $%d", strings.Join(sets, ", "), next(slug))
	return query, args, nil
}

func (r *PostgresArticleRepository) ListCandidates(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error) {
	query := `SELECT slug, domain, status, title, content, updated_at FROM articles WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(" AND domain = $%d", argPos)
		args = append(args, filter.Domain)
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if len(filter.ExcludeSlugs) > 0 {
		query += fmt.Sprintf(" AND NOT (slug = ANY($%d))", argPos)
		args = append(args, pq.Array(filter.ExcludeSlugs))
		argPos++
	}

	query += " ORDER BY updated_at ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}
	return articles, nil
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		article     models.Article
		contentJSON []byte
	)
	err := row.Scan(&article.Slug, &article.Domain, &article.Status, &article.Title, &contentJSON, &article.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &article.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content of %s: %w", article.Slug, err)
		}
	}
	return &article, nil
}

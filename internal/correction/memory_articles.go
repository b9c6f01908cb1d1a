package correction

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/autoguides/contentfix/internal/models"
)

// MemoryArticleStore implements an in-memory article store for testing/development.
type MemoryArticleStore struct {
	mu       sync.Mutex
	articles map[string]models.Article
}

// NewMemoryArticleStore creates a store seeded with the given articles.
func NewMemoryArticleStore(articles ...models.Article) *MemoryArticleStore {
	s := &MemoryArticleStore{articles: make(map[string]models.Article)}
	for _, a := range articles {
		s.articles[a.Slug] = a
	}
	return s
}

func (s *MemoryArticleStore) FindBySlug(ctx context.Context, slug string) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	article, ok := s.articles[slug]
	if !ok {
		return nil, nil
	}
	copied, err := cloneArticle(article)
	if err != nil {
		return nil, err
	}
	return &copied, nil
}

func (s *MemoryArticleStore) Update(ctx context.Context, slug string, updates []models.FieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	article, ok := s.articles[slug]
	if !ok {
		return fmt.Errorf("article %s not found", slug)
	}
	updated, err := ApplyFieldUpdates(article, updates)
	if err != nil {
		return err
	}
	s.articles[slug] = updated
	return nil
}

func (s *MemoryArticleStore) ListCandidates(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := make(map[string]bool, len(filter.ExcludeSlugs))
	for _, slug := range filter.ExcludeSlugs {
		excluded[slug] = true
	}

	var out []models.Article
	for _, a := range s.articles {
		if excluded[a.Slug] {
			continue
		}
		if filter.Domain != "" && a.Domain != filter.Domain {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ApplyFieldUpdates writes dotted-path updates into a copy of the article by
// way of its JSON document, the same shape the persistent stores patch.
func ApplyFieldUpdates(article models.Article, updates []models.FieldUpdate) (models.Article, error) {
	raw, err := json.Marshal(article)
	if err != nil {
		return models.Article{}, fmt.Errorf("failed to encode article: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Article{}, fmt.Errorf("failed to decode article: %w", err)
	}

	for _, u := range updates {
		if err := setPath(doc, strings.Split(u.Path, "."), u.Value); err != nil {
			return models.Article{}, fmt.Errorf("failed to set %s: %w", u.Path, err)
		}
	}

	raw, err = json.Marshal(doc)
	if err != nil {
		return models.Article{}, fmt.Errorf("failed to encode patched article: %w", err)
	}
	var out models.Article
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Article{}, fmt.Errorf("failed to decode patched article: %w", err)
	}
	return out, nil
}

func setPath(doc map[string]any, path []string, value any) error {
	if len(path) == 0 || path[0] == "" {
		return fmt.Errorf("empty path")
	}
	if len(path) == 1 {
		doc[path[0]] = value
		return nil
	}

	child, ok := doc[path[0]].(map[string]any)
	if !ok {
		if doc[path[0]] != nil {
			return fmt.Errorf("%s is not an object", path[0])
		}
		child = make(map[string]any)
		doc[path[0]] = child
	}
	return setPath(child, path[1:], value)
}

func cloneArticle(a models.Article) (models.Article, error) {
	return ApplyFieldUpdates(a, nil)
}

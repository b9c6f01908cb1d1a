package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcfs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/models"
)

// DefaultCollection is where the publishing system keeps generated guides.
const DefaultCollection = "articles"

// articleDoc is the stored document shape. Documents are keyed by slug.
type articleDoc struct {
	Slug      string                `firestore:"slug"`
	Domain    string                `firestore:"domain"`
	Status    string                `firestore:"status"`
	Title     string                `firestore:"title"`
	Content   models.ArticleContent `firestore:"content"`
	UpdatedAt time.Time             `firestore:"updated_at"`
}

func (d articleDoc) article() models.Article {
	return models.Article{
		Slug:      d.Slug,
		Domain:    d.Domain,
		Status:    d.Status,
		Title:     d.Title,
		Content:   d.Content,
		UpdatedAt: d.UpdatedAt,
	}
}

// ArticleStore implements correction.ArticleStore on a Firestore collection.
type ArticleStore struct {
	client     *gcfs.Client
	collection string
}

var _ correction.ArticleStore = (*ArticleStore)(nil)

// NewClient creates a Firestore client for the given project ID.
func NewClient(ctx context.Context, projectID string) (*gcfs.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := gcfs.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// NewArticleStore wraps a client. An empty collection uses DefaultCollection.
func NewArticleStore(client *gcfs.Client, collection string) *ArticleStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &ArticleStore{client: client, collection: collection}
}

func (s *ArticleStore) FindBySlug(ctx context.Context, slug string) (*models.Article, error) {
	snap, err := s.client.Collection(s.collection).Doc(slug).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %s: %w", slug, err)
	}

	var doc articleDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode article %s: %w", slug, err)
	}
	if doc.Slug == "" {
		doc.Slug = snap.Ref.ID
	}
	article := doc.article()
	return &article, nil
}

// Update issues one field-path update, so only the touched fields change.
func (s *ArticleStore) Update(ctx context.Context, slug string, updates []models.FieldUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	fsUpdates, err := toFirestoreUpdates(updates)
	if err != nil {
		return err
	}

	_, err = s.client.Collection(s.collection).Doc(slug).Update(ctx, fsUpdates)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: article %s", correction.ErrNotFound, slug)
	}
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", slug, err)
	}
	return nil
}

func toFirestoreUpdates(updates []models.FieldUpdate) ([]gcfs.Update, error) {
	out := make([]gcfs.Update, 0, len(updates)+1)
	for _, u := range updates {
		if u.Path != "title" && !strings.HasPrefix(u.Path, "content.") {
			return nil, fmt.Errorf("unsupported article field %q", u.Path)
		}
		for _, part := range strings.Split(u.Path, ".") {
			if part == "" {
				return nil, fmt.Errorf("invalid article field %q", u.Path)
			}
		}
		out = append(out, gcfs.Update{Path: u.Path, Value: u.Value})
	}
	out = append(out, gcfs.Update{Path: "updated_at", Value: gcfs.ServerTimestamp})
	return out, nil
}

// ListCandidates filters by domain and status in the query. Excluded slugs are
// skipped while iterating since Firestore caps not-in filters at ten values.
func (s *ArticleStore) ListCandidates(ctx context.Context, filter models.ArticleFilter) ([]models.Article, error) {
	query := s.client.Collection(s.collection).Query
	if filter.Domain != "" {
		query = query.Where("domain", "==", filter.Domain)
	}
	if filter.Status != "" {
		query = query.Where("status", "==", filter.Status)
	}
	query = query.OrderBy("updated_at", gcfs.Asc)

	excluded := make(map[string]bool, len(filter.ExcludeSlugs))
	for _, slug := range filter.ExcludeSlugs {
		excluded[slug] = true
	}
	if filter.Limit > 0 && len(excluded) == 0 {
		query = query.Limit(filter.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var articles []models.Article
	for filter.Limit <= 0 || len(articles) < filter.Limit {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list articles: %w", err)
		}
		if excluded[snap.Ref.ID] {
			continue
		}

		var doc articleDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode article %s: %w", snap.Ref.ID, err)
		}
		if doc.Slug == "" {
			doc.Slug = snap.Ref.ID
		}
		articles = append(articles, doc.article())
	}
	return articles, nil
}

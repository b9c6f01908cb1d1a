package correction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// stubValidator returns canned verdicts per slug.
type stubValidator struct {
	verdicts map[string]*models.ValidationResult
	err      error
	calls    int
}

func (v *stubValidator) Validate(ctx context.Context, article models.Article) (*models.ValidationResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if verdict, ok := v.verdicts[article.Slug]; ok {
		return verdict, nil
	}
	return &models.ValidationResult{NeedsAnyCorrection: false}, nil
}

// stubCompleter replays responses and can close the gate after N calls.
type stubCompleter struct {
	mu         sync.Mutex
	responses  []string
	errs       []error
	closeAfter int
	wait       time.Duration
	calls      int
	prompts    []string
}

func (c *stubCompleter) CanMakeRequest(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeAfter <= 0 || c.calls < c.closeAfter
}

func (c *stubCompleter) WaitTime(ctx context.Context) time.Duration {
	if c.CanMakeRequest(ctx) {
		return 0
	}
	return c.wait
}

func (c *stubCompleter) Complete(ctx context.Context, prompt, systemPrompt string, opts ...llm.CallOption) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func pressureArticle(slug string) models.Article {
	return models.Article{
		Slug:   slug,
		Domain: "tire-pressure",
		Status: "published",
		Title:  "2023 Toyota Corolla Tire Pressure",
		Content: models.ArticleContent{
			Introduction: "The recommended pressure is 30/30 PSI for daily driving.",
			Conclusion:   "Keep your tires at 30/30 PSI.",
			VehicleData: models.VehicleData{
				Year:  2023,
				Make:  "Toyota",
				Model: "Corolla",
				Pressures: models.PressureData{
					EmptyFront:      models.PSI(30),
					EmptyRear:       models.PSI(30),
					PressureDisplay: "30/30 PSI",
				},
			},
			SEO: models.SEOData{
				PageTitle:       "2023 Toyota Corolla Tire Pressure Guide",
				MetaDescription: "Recommended tire pressure: 30/30 PSI.",
			},
			FAQ: []models.FAQItem{
				{Question: "What pressure should I run?", Answer: "Run 30/30 PSI cold."},
			},
		},
	}
}

func pressureVerdict() *models.ValidationResult {
	return &models.ValidationResult{
		NeedsAnyCorrection:      true,
		NeedsPressureCorrection: true,
		PressureDetails:         map[string]any{"issue": "front pressure below manufacturer spec"},
		OverallPriority:         models.PriorityHigh,
	}
}

func seedRecord(store *MemoryStore, slug string, t models.CorrectionType, status models.CorrectionStatus, created, updated time.Time) models.CorrectionRecord {
	rec := models.CorrectionRecord{
		ID:             uuid.New().String(),
		ArticleSlug:    slug,
		CorrectionType: t,
		Status:         status,
		Version:        1,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
	if status == models.CorrectionStatusFailed {
		rec.FailureReason = "seeded failure"
	}
	store.Put(rec)
	return rec
}

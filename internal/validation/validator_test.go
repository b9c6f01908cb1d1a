package validation

import (
	"context"
	"testing"

	"github.com/autoguides/contentfix/internal/models"
)

func corolla() models.Article {
	return models.Article{
		Slug:  "toyota-corolla-2023",
		Title: "2023 Toyota Corolla Tire Pressure",
		Content: models.ArticleContent{
			Introduction: "The Corolla calls for 32/32 PSI.",
			VehicleData: models.VehicleData{
				Year:  2023,
				Make:  "Toyota",
				Model: "Corolla",
				Pressures: models.PressureData{
					EmptyFront:      models.PSI(32),
					EmptyRear:       models.PSI(32),
					PressureDisplay: "32/32 PSI",
				},
			},
			SEO: models.SEOData{PageTitle: "2023 Toyota Corolla Tire Pressure Guide"},
		},
	}
}

func TestValidateCleanArticle(t *testing.T) {
	result, err := NewRuleValidator(Rules{}).Validate(context.Background(), corolla())
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if result.NeedsAnyCorrection {
		t.Errorf("expected clean verdict, got %+v", result)
	}
}

func TestValidatePressureIssues(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.Article)
		issue    string
		priority models.Priority
	}{
		{
			name:     "display disagrees with numbers",
			mutate:   func(a *models.Article) { a.Content.VehicleData.Pressures.PressureDisplay = "30/30 PSI" },
			issue:    "display_mismatch",
			priority: models.PriorityMedium,
		},
		{
			name:     "implausible value",
			mutate:   func(a *models.Article) { a.Content.VehicleData.Pressures.EmptyRear = models.PSI(320) },
			issue:    "implausible_value",
			priority: models.PriorityHigh,
		},
		{
			name:     "missing rear",
			mutate:   func(a *models.Article) { a.Content.VehicleData.Pressures.EmptyRear = nil },
			issue:    "missing_pressure",
			priority: models.PriorityHigh,
		},
		{
			name: "loaded below empty",
			mutate: func(a *models.Article) {
				a.Content.VehicleData.Pressures.LoadedFront = models.PSI(28)
				a.Content.VehicleData.Pressures.LoadedRear = models.PSI(35)
			},
			issue:    "loaded_below_empty",
			priority: models.PriorityLow,
		},
		{
			name:     "introduction quotes other numbers",
			mutate:   func(a *models.Article) { a.Content.Introduction = "Inflate to 35 / 33 psi." },
			issue:    "text_mismatch",
			priority: models.PriorityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			article := corolla()
			tt.mutate(&article)

			result, err := NewRuleValidator(DefaultRules()).Validate(context.Background(), article)
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if !result.NeedsAnyCorrection || !result.NeedsPressureCorrection || result.NeedsTitleCorrection {
				t.Fatalf("unexpected verdict: %+v", result)
			}
			codes, _ := result.PressureDetails["issues"].([]string)
			if !contains(codes, tt.issue) {
				t.Errorf("expected issue %q in %v", tt.issue, codes)
			}
			if result.OverallPriority != tt.priority {
				t.Errorf("expected priority %s, got %s", tt.priority, result.OverallPriority)
			}
		})
	}
}

func TestValidateTitleYear(t *testing.T) {
	article := corolla()
	article.Content.SEO.PageTitle = "2021 Toyota Corolla Tire Pressure Guide"

	result, err := NewRuleValidator(DefaultRules()).Validate(context.Background(), article)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !result.NeedsTitleCorrection || result.NeedsPressureCorrection {
		t.Fatalf("unexpected verdict: %+v", result)
	}
	if result.TitleDetails["page_title"] != 2021 || result.TitleDetails["expected_year"] != 2023 {
		t.Errorf("unexpected title details: %v", result.TitleDetails)
	}
	if result.OverallPriority != models.PriorityMedium {
		t.Errorf("expected medium priority for SEO-only mismatch, got %s", result.OverallPriority)
	}

	article.Title = "2020 Toyota Corolla Tire Pressure"
	result, _ = NewRuleValidator(DefaultRules()).Validate(context.Background(), article)
	if result.OverallPriority != models.PriorityHigh {
		t.Errorf("expected high priority for headline mismatch, got %s", result.OverallPriority)
	}
}

func TestValidateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewRuleValidator(DefaultRules()).Validate(ctx, corolla()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

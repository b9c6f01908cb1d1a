package correction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/models"
)

func newPendingFixture(t *testing.T, slugs ...string) (*MemoryStore, *MemoryArticleStore, []models.CorrectionRecord) {
	t.Helper()
	store := NewMemoryStore(fixedNow)
	articles := NewMemoryArticleStore()
	var recs []models.CorrectionRecord
	for i, slug := range slugs {
		article := pressureArticle(slug)
		articles.articles[slug] = article
		rec := seedRecord(store, slug, models.CorrectionTypePressureFix, models.CorrectionStatusPending,
			testNow.Add(time.Duration(i-len(slugs))*time.Minute), testNow)
		rec.OriginalData = models.SnapshotArticle(article, nil, models.PriorityHigh)
		store.Put(rec)
		recs = append(recs, rec)
	}
	return store, articles, recs
}

func newTestProcessor(store Store, articles ArticleStore, client Completer) *Processor {
	return NewProcessor(store, articles, client, nil, nil, nil, nil)
}

type closedCompleter struct {
	wait time.Duration
}

func (c *closedCompleter) CanMakeRequest(context.Context) bool    { return false }
func (c *closedCompleter) WaitTime(context.Context) time.Duration { return c.wait }
func (c *closedCompleter) Complete(context.Context, string, string, ...llm.CallOption) (string, error) {
	return "", errors.New("gate closed")
}

func TestProcessAvailableRateLimited(t *testing.T) {
	store, articles, recs := newPendingFixture(t, "a")

	counters := newTestProcessor(store, articles, &closedCompleter{wait: 42500 * time.Millisecond}).
		ProcessAvailable(context.Background(), 5)

	if !counters.SkippedRateLimited || counters.WaitSeconds != 43 {
		t.Errorf("expected rate limited skip with 43s wait, got %+v", counters)
	}
	if counters.Fetched != 0 {
		t.Errorf("expected no records fetched, got %d", counters.Fetched)
	}
	got, _ := store.Get(recs[0].ID)
	if got.Status != models.CorrectionStatusPending {
		t.Errorf("expected record untouched, got %s", got.Status)
	}
}

func TestProcessAvailableOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		err        error
		wantStatus models.CorrectionStatus
		wantReason string
	}{
		{
			name:       "completed",
			response:   `{"needs_update": true, "corrected_pressures": {"empty_front": 32, "pressure_display": "32/30 PSI"}}`,
			wantStatus: models.CorrectionStatusCompleted,
		},
		{
			name:       "no changes",
			response:   "All good.\n```json\n{\"needs_update\": false, \"explanation\": \"values match the placard\"}\n```",
			wantStatus: models.CorrectionStatusNoChangesNeeded,
		},
		{
			name:       "parse failure",
			response:   "I could not find any issues.",
			wantStatus: models.CorrectionStatusFailed,
			wantReason: ErrParseFailure.Error(),
		},
		{
			name:       "apply noop",
			response:   `{"needs_update": true, "corrected_pressures": {"empty_front": 30}}`,
			wantStatus: models.CorrectionStatusFailed,
			wantReason: ErrApplyNoop.Error(),
		},
		{
			name:       "api failure",
			err:        &llm.APIError{StatusCode: 500, Body: "upstream unavailable"},
			wantStatus: models.CorrectionStatusFailed,
			wantReason: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, articles, recs := newPendingFixture(t, "toyota-corolla-2023")
			client := &stubCompleter{responses: []string{tt.response}, errs: []error{tt.err}}

			counters := newTestProcessor(store, articles, client).ProcessAvailable(context.Background(), 5)
			if counters.Processed != 1 {
				t.Fatalf("expected 1 processed, got %+v", counters)
			}

			got, _ := store.Get(recs[0].ID)
			if got.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s (reason %q)", tt.wantStatus, got.Status, got.FailureReason)
			}
			if tt.wantReason != "" && !strings.Contains(got.FailureReason, tt.wantReason) {
				t.Errorf("expected reason containing %q, got %q", tt.wantReason, got.FailureReason)
			}
			if got.Status.HasResult() != (got.ResultData != nil) {
				t.Errorf("result data presence does not match status %s", got.Status)
			}
		})
	}
}

func TestProcessAvailableNoChangesLeavesArticle(t *testing.T) {
	store, articles, _ := newPendingFixture(t, "a")
	client := &stubCompleter{responses: []string{`{"needs_update": false}`}}

	newTestProcessor(store, articles, client).ProcessAvailable(context.Background(), 5)

	article, _ := articles.FindBySlug(context.Background(), "a")
	if *article.Content.VehicleData.Pressures.EmptyFront != 30 {
		t.Error("article changed on no_changes_needed")
	}
}

func TestProcessAvailableStopsWhenGateCloses(t *testing.T) {
	store, articles, recs := newPendingFixture(t, "a", "b", "c")
	client := &stubCompleter{
		responses:  []string{`{"needs_update": false}`, `{"needs_update": false}`},
		closeAfter: 1,
		wait:       59 * time.Second,
	}

	counters := newTestProcessor(store, articles, client).ProcessAvailable(context.Background(), 5)
	if counters.Fetched != 3 || counters.Processed != 1 || counters.Skipped != 2 {
		t.Errorf("expected 1 processed and 2 skipped, got %+v", counters)
	}
	if counters.WaitSeconds != 59 {
		t.Errorf("expected wait estimate, got %d", counters.WaitSeconds)
	}
	if !counters.StoppedRateLimited || counters.SkippedRateLimited || !counters.RateLimited() {
		t.Errorf("expected a mid-pass rate limit stop, got %+v", counters)
	}
	if counters.Err != nil {
		t.Errorf("stopping on the gate is not an error: %v", counters.Err)
	}

	first, _ := store.Get(recs[0].ID)
	if first.Status != models.CorrectionStatusNoChangesNeeded {
		t.Errorf("expected oldest record processed first, got %s", first.Status)
	}
	for _, rec := range recs[1:] {
		got, _ := store.Get(rec.ID)
		if got.Status != models.CorrectionStatusPending {
			t.Errorf("expected %s to stay pending, got %s", rec.ArticleSlug, got.Status)
		}
	}
}

func TestProcessAvailableThrottledReleasesRecord(t *testing.T) {
	store, articles, recs := newPendingFixture(t, "a", "b")
	client := &stubCompleter{errs: []error{&llm.APIError{StatusCode: 429, Body: "rate limited"}}}

	counters := newTestProcessor(store, articles, client).ProcessAvailable(context.Background(), 5)
	if counters.Released != 1 || counters.Skipped != 1 || counters.Failed != 0 {
		t.Errorf("expected release and stop, got %+v", counters)
	}
	if client.calls != 1 {
		t.Errorf("expected loop to stop after 429, got %d calls", client.calls)
	}
	if !counters.RateLimited() {
		t.Errorf("expected a 429 to mark the pass rate limited, got %+v", counters)
	}

	for _, rec := range recs {
		got, _ := store.Get(rec.ID)
		if got.Status != models.CorrectionStatusPending {
			t.Errorf("expected %s pending after throttle, got %s", rec.ArticleSlug, got.Status)
		}
	}
}

func TestProcessAvailableMissingArticle(t *testing.T) {
	store, _, recs := newPendingFixture(t, "gone")
	client := &stubCompleter{responses: []string{`{"needs_update": true, "corrected_pressures": {"empty_front": 32}}`}}

	newTestProcessor(store, NewMemoryArticleStore(), client).ProcessAvailable(context.Background(), 5)

	got, _ := store.Get(recs[0].ID)
	if got.Status != models.CorrectionStatusFailed || !strings.Contains(got.FailureReason, "not found") {
		t.Errorf("expected failure for missing article, got %s %q", got.Status, got.FailureReason)
	}
}

func TestProcessAvailablePromptUsesSnapshot(t *testing.T) {
	store, articles, _ := newPendingFixture(t, "toyota-corolla-2023")
	client := &stubCompleter{responses: []string{`{"needs_update": false}`}}

	newTestProcessor(store, articles, client).ProcessAvailable(context.Background(), 5)

	if len(client.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	for _, want := range []string{"toyota-corolla-2023", "2023 Toyota Corolla", "empty front: 30", `display: "30/30 PSI"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

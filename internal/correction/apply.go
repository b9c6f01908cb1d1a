package correction

import (
	"fmt"
	"slices"

	"github.com/autoguides/contentfix/internal/models"
)

// Field paths written by the apply engine, rooted at the article document.
const (
	pathTitle                 = "title"
	pathIntroduction          = "content.introduction"
	pathConclusion            = "content.conclusion"
	pathSections              = "content.sections"
	pathFAQ                   = "content.faq"
	pathSEOPageTitle          = "content.seo.page_title"
	pathSEOMetaDescription    = "content.seo.meta_description"
	pathEmptyFront            = "content.vehicle_data.pressures.empty_front"
	pathEmptyRear             = "content.vehicle_data.pressures.empty_rear"
	pathLoadedFront           = "content.vehicle_data.pressures.loaded_front"
	pathLoadedRear            = "content.vehicle_data.pressures.loaded_rear"
	pathPressureDisplay       = "content.vehicle_data.pressures.pressure_display"
	pathLoadedPressureDisplay = "content.vehicle_data.pressures.loaded_pressure_display"
)

// ApplyResult lists the fields an apply actually changed.
type ApplyResult struct {
	Updates []models.FieldUpdate
}

// Changed reports whether any field changed.
func (r ApplyResult) Changed() bool { return len(r.Updates) > 0 }

// Paths returns the changed field paths in write order.
func (r ApplyResult) Paths() []string {
	paths := make([]string, len(r.Updates))
	for i, u := range r.Updates {
		paths[i] = u.Path
	}
	return paths
}

// Engine merges correction payloads into articles, writing only the fields a
// payload carries.
type Engine struct {
	rewriter TextRewriter
}

// NewEngine creates an apply engine. A nil rewriter uses PSIPatternRewriter.
func NewEngine(rewriter TextRewriter) *Engine {
	if rewriter == nil {
		rewriter = PSIPatternRewriter{}
	}
	return &Engine{rewriter: rewriter}
}

// Apply mutates article in place and returns the changed fields. A payload
// with needs_update=false is a successful no-op.
func (e *Engine) Apply(article *models.Article, payload models.Payload) (ApplyResult, error) {
	if article == nil || payload == nil {
		return ApplyResult{}, fmt.Errorf("apply requires an article and a payload")
	}
	if !payload.UpdateNeeded() {
		return ApplyResult{}, nil
	}

	w := &fieldWriter{}
	switch p := payload.(type) {
	case *models.PressureCorrectionPayload:
		e.applyPressure(w, article, p)
	case *models.TitleSeoCorrectionPayload:
		applyTitleSeo(w, article, p)
	default:
		return ApplyResult{}, fmt.Errorf("unsupported payload type %T", payload)
	}
	return ApplyResult{Updates: w.updates}, nil
}

func (e *Engine) applyPressure(w *fieldWriter, article *models.Article, p *models.PressureCorrectionPayload) {
	pressures := &article.Content.VehicleData.Pressures
	oldDisplay := pressures.PressureDisplay
	oldLoadedDisplay := pressures.LoadedPressureDisplay

	if cp := p.CorrectedPressures; !cp.IsEmpty() {
		w.setFloat(pathEmptyFront, &pressures.EmptyFront, cp.EmptyFront)
		w.setFloat(pathEmptyRear, &pressures.EmptyRear, cp.EmptyRear)
		w.setFloat(pathLoadedFront, &pressures.LoadedFront, cp.LoadedFront)
		w.setFloat(pathLoadedRear, &pressures.LoadedRear, cp.LoadedRear)
		w.setString(pathPressureDisplay, &pressures.PressureDisplay, cp.PressureDisplay)
		w.setString(pathLoadedPressureDisplay, &pressures.LoadedPressureDisplay, cp.LoadedPressureDisplay)

		// Numbers moved but no display was sent: keep the display in step.
		if cp.PressureDisplay == nil && (cp.EmptyFront != nil || cp.EmptyRear != nil) {
			if d, ok := derivedDisplay(oldDisplay, pressures.EmptyFront, pressures.EmptyRear); ok {
				w.setString(pathPressureDisplay, &pressures.PressureDisplay, &d)
			}
		}
		if cp.LoadedPressureDisplay == nil && (cp.LoadedFront != nil || cp.LoadedRear != nil) {
			if d, ok := derivedDisplay(oldLoadedDisplay, pressures.LoadedFront, pressures.LoadedRear); ok {
				w.setString(pathLoadedPressureDisplay, &pressures.LoadedPressureDisplay, &d)
			}
		}
	}

	applyTextPatch(w, article, p.CorrectedContent)

	if oldDisplay != pressures.PressureDisplay {
		e.rewriteEmbedded(w, article, p.CorrectedContent, oldDisplay, pressures.PressureDisplay)
	}
	if oldLoadedDisplay != pressures.LoadedPressureDisplay {
		e.rewriteEmbedded(w, article, p.CorrectedContent, oldLoadedDisplay, pressures.LoadedPressureDisplay)
	}
}

// rewriteEmbedded re-derives every text field the payload did not write that
// still quotes the old display.
func (e *Engine) rewriteEmbedded(w *fieldWriter, article *models.Article, written *models.TextPatch, oldValue, newValue string) {
	if oldValue == "" || newValue == "" {
		return
	}
	if written == nil {
		written = &models.TextPatch{}
	}

	rewrite := func(path string, dst *string, skip bool) {
		if skip {
			return
		}
		if out, ok := e.rewriter.Rewrite(*dst, oldValue, newValue); ok {
			w.setString(path, dst, &out)
		}
	}
	rewrite(pathTitle, &article.Title, written.Title != nil)
	rewrite(pathIntroduction, &article.Content.Introduction, written.Introduction != nil)
	rewrite(pathConclusion, &article.Content.Conclusion, written.Conclusion != nil)
	rewrite(pathSEOPageTitle, &article.Content.SEO.PageTitle, false)
	rewrite(pathSEOMetaDescription, &article.Content.SEO.MetaDescription, false)

	sectionsChanged := false
	for i := range article.Content.Sections {
		if out, ok := e.rewriter.Rewrite(article.Content.Sections[i].Body, oldValue, newValue); ok {
			article.Content.Sections[i].Body = out
			sectionsChanged = true
		}
	}
	if sectionsChanged {
		w.record(pathSections, slices.Clone(article.Content.Sections))
	}

	faqChanged := false
	for i := range article.Content.FAQ {
		if out, ok := e.rewriter.Rewrite(article.Content.FAQ[i].Answer, oldValue, newValue); ok {
			article.Content.FAQ[i].Answer = out
			faqChanged = true
		}
	}
	if faqChanged {
		w.record(pathFAQ, slices.Clone(article.Content.FAQ))
	}
}

func applyTitleSeo(w *fieldWriter, article *models.Article, p *models.TitleSeoCorrectionPayload) {
	applyTextPatch(w, article, p.CorrectedContent)

	if seo := p.CorrectedSEO; !seo.IsEmpty() {
		w.setString(pathSEOPageTitle, &article.Content.SEO.PageTitle, seo.PageTitle)
		w.setString(pathSEOMetaDescription, &article.Content.SEO.MetaDescription, seo.MetaDescription)
	}

	if len(p.CorrectedFAQ) > 0 && !slices.Equal(p.CorrectedFAQ, article.Content.FAQ) {
		article.Content.FAQ = slices.Clone(p.CorrectedFAQ)
		w.record(pathFAQ, slices.Clone(p.CorrectedFAQ))
	}
}

func applyTextPatch(w *fieldWriter, article *models.Article, patch *models.TextPatch) {
	if patch.IsEmpty() {
		return
	}
	w.setString(pathTitle, &article.Title, patch.Title)
	w.setString(pathIntroduction, &article.Content.Introduction, patch.Introduction)
	w.setString(pathConclusion, &article.Content.Conclusion, patch.Conclusion)
}

// derivedDisplay rebuilds a PSI display from the current numbers, but only
// when the old display was itself a plain "NN/NN PSI" string.
func derivedDisplay(oldDisplay string, front, rear *float64) (string, bool) {
	if front == nil || rear == nil || !isPSIDisplay(oldDisplay) {
		return "", false
	}
	d := formatPSIDisplay(*front, *rear)
	return d, d != oldDisplay
}

// fieldWriter applies values and records the ones that actually changed. A
// path written twice keeps a single entry holding the last value.
type fieldWriter struct {
	updates []models.FieldUpdate
}

func (w *fieldWriter) record(path string, value any) {
	for i := range w.updates {
		if w.updates[i].Path == path {
			w.updates[i].Value = value
			return
		}
	}
	w.updates = append(w.updates, models.FieldUpdate{Path: path, Value: value})
}

func (w *fieldWriter) setString(path string, dst *string, value *string) {
	if value == nil || *dst == *value {
		return
	}
	*dst = *value
	w.record(path, *value)
}

func (w *fieldWriter) setFloat(path string, dst **float64, value *float64) {
	if value == nil || (*dst != nil && **dst == *value) {
		return
	}
	v := *value
	*dst = &v
	w.record(path, v)
}

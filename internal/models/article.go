package models

import "time"

// Article is a generated guide owned by the publishing system. The pipeline
// reads it and patches selected fields, never creates or deletes it.
type Article struct {
	Slug      string         `json:"slug"`
	Domain    string         `json:"domain"`
	Status    string         `json:"status"`
	Title     string         `json:"title"`
	Content   ArticleContent `json:"content"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ArticleContent is the nested content document stored with an article.
type ArticleContent struct {
	Introduction string           `json:"introduction,omitempty" firestore:"introduction,omitempty"`
	Conclusion   string           `json:"conclusion,omitempty" firestore:"conclusion,omitempty"`
	Sections     []ContentSection `json:"sections,omitempty" firestore:"sections,omitempty"`
	VehicleData  VehicleData      `json:"vehicle_data" firestore:"vehicle_data"`
	SEO          SEOData          `json:"seo" firestore:"seo"`
	FAQ          []FAQItem        `json:"faq,omitempty" firestore:"faq,omitempty"`
}

// ContentSection is one heading/body block of the article body.
type ContentSection struct {
	Heading string `json:"heading" firestore:"heading"`
	Body    string `json:"body" firestore:"body"`
}

// VehicleData is the structured vehicle sub-document.
type VehicleData struct {
	Year      int          `json:"year,omitempty" firestore:"year,omitempty"`
	Make      string       `json:"make,omitempty" firestore:"make,omitempty"`
	Model     string       `json:"model,omitempty" firestore:"model,omitempty"`
	Trim      string       `json:"trim,omitempty" firestore:"trim,omitempty"`
	TireSize  string       `json:"tire_size,omitempty" firestore:"tire_size,omitempty"`
	Pressures PressureData `json:"pressures" firestore:"pressures"`
}

// Clone returns a deep copy so snapshots never alias live article data.
func (v VehicleData) Clone() VehicleData {
	out := v
	out.Pressures = v.Pressures.Clone()
	return out
}

// PressureData holds the recommended tire pressures in PSI.
type PressureData struct {
	EmptyFront            *float64 `json:"empty_front,omitempty" firestore:"empty_front,omitempty"`
	EmptyRear             *float64 `json:"empty_rear,omitempty" firestore:"empty_rear,omitempty"`
	LoadedFront           *float64 `json:"loaded_front,omitempty" firestore:"loaded_front,omitempty"`
	LoadedRear            *float64 `json:"loaded_rear,omitempty" firestore:"loaded_rear,omitempty"`
	PressureDisplay       string   `json:"pressure_display,omitempty" firestore:"pressure_display,omitempty"`
	LoadedPressureDisplay string   `json:"loaded_pressure_display,omitempty" firestore:"loaded_pressure_display,omitempty"`
}

// Clone returns a copy with fresh pointers.
func (p PressureData) Clone() PressureData {
	return PressureData{
		EmptyFront:            clonePSI(p.EmptyFront),
		EmptyRear:             clonePSI(p.EmptyRear),
		LoadedFront:           clonePSI(p.LoadedFront),
		LoadedRear:            clonePSI(p.LoadedRear),
		PressureDisplay:       p.PressureDisplay,
		LoadedPressureDisplay: p.LoadedPressureDisplay,
	}
}

func clonePSI(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// PSI is a convenience constructor for pressure values.
func PSI(v float64) *float64 {
	return &v
}

// SEOData holds search metadata for the article page.
type SEOData struct {
	PageTitle       string `json:"page_title,omitempty" firestore:"page_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty" firestore:"meta_description,omitempty"`
}

// FAQItem is one question/answer pair.
type FAQItem struct {
	Question string `json:"question" firestore:"question"`
	Answer   string `json:"answer" firestore:"answer"`
}

// ArticleFilter selects candidate articles for the creation scan.
type ArticleFilter struct {
	Domain       string
	Status       string
	ExcludeSlugs []string
	Limit        int
}

// FieldUpdate is a single partial write to an article. Path is dot separated
// and rooted at the article, e.g. "content.vehicle_data.pressures.empty_front".
type FieldUpdate struct {
	Path  string
	Value any
}

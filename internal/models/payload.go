package models

// Payload is a parsed correction returned by the generative API. Each
// correction type has its own variant so merges are checked field by field.
type Payload interface {
	CorrectionType() CorrectionType
	UpdateNeeded() bool
}

// TextPatch carries replacement free-text fields. Nil means "leave as is".
type TextPatch struct {
	Title        *string `json:"title,omitempty"`
	Introduction *string `json:"introduction,omitempty"`
	Conclusion   *string `json:"conclusion,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p *TextPatch) IsEmpty() bool {
	return p == nil || (p.Title == nil && p.Introduction == nil && p.Conclusion == nil)
}

// PressurePatch carries replacement pressure values and display strings.
type PressurePatch struct {
	EmptyFront            *float64 `json:"empty_front,omitempty"`
	EmptyRear             *float64 `json:"empty_rear,omitempty"`
	LoadedFront           *float64 `json:"loaded_front,omitempty"`
	LoadedRear            *float64 `json:"loaded_rear,omitempty"`
	PressureDisplay       *string  `json:"pressure_display,omitempty"`
	LoadedPressureDisplay *string  `json:"loaded_pressure_display,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p *PressurePatch) IsEmpty() bool {
	return p == nil || (p.EmptyFront == nil && p.EmptyRear == nil &&
		p.LoadedFront == nil && p.LoadedRear == nil &&
		p.PressureDisplay == nil && p.LoadedPressureDisplay == nil)
}

// SEOPatch carries replacement SEO fields.
type SEOPatch struct {
	PageTitle       *string `json:"page_title,omitempty"`
	MetaDescription *string `json:"meta_description,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p *SEOPatch) IsEmpty() bool {
	return p == nil || (p.PageTitle == nil && p.MetaDescription == nil)
}

// PressureCorrectionPayload is the result of a pressure_fix request.
type PressureCorrectionPayload struct {
	NeedsUpdate        bool           `json:"needs_update"`
	CorrectedPressures *PressurePatch `json:"corrected_pressures,omitempty"`
	CorrectedContent   *TextPatch     `json:"corrected_content,omitempty"`
	Explanation        string         `json:"explanation,omitempty"`
}

func (p *PressureCorrectionPayload) CorrectionType() CorrectionType {
	return CorrectionTypePressureFix
}

func (p *PressureCorrectionPayload) UpdateNeeded() bool { return p.NeedsUpdate }

// TitleSeoCorrectionPayload is the result of a title_year_fix request.
type TitleSeoCorrectionPayload struct {
	NeedsUpdate      bool       `json:"needs_update"`
	CorrectedContent *TextPatch `json:"corrected_content,omitempty"`
	CorrectedSEO     *SEOPatch  `json:"corrected_seo,omitempty"`
	CorrectedFAQ     []FAQItem  `json:"corrected_faq,omitempty"`
	Explanation      string     `json:"explanation,omitempty"`
}

func (p *TitleSeoCorrectionPayload) CorrectionType() CorrectionType {
	return CorrectionTypeTitleYearFix
}

func (p *TitleSeoCorrectionPayload) UpdateNeeded() bool { return p.NeedsUpdate }

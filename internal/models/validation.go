package models

// ValidationResult is the verdict of the defect validator for one article.
type ValidationResult struct {
	NeedsAnyCorrection      bool           `json:"needs_any_correction"`
	NeedsPressureCorrection bool           `json:"needs_pressure_correction"`
	PressureDetails         map[string]any `json:"pressure_details,omitempty"`
	NeedsTitleCorrection    bool           `json:"needs_title_correction"`
	TitleDetails            map[string]any `json:"title_details,omitempty"`
	OverallPriority         Priority       `json:"overall_priority"`
}

// Defect is one correction the validator asked for.
type Defect struct {
	Type    CorrectionType
	Details map[string]any
}

// Defects flattens the verdict into the list of corrections to queue.
func (v ValidationResult) Defects() []Defect {
	var defects []Defect
	if v.NeedsPressureCorrection {
		defects = append(defects, Defect{Type: CorrectionTypePressureFix, Details: v.PressureDetails})
	}
	if v.NeedsTitleCorrection {
		defects = append(defects, Defect{Type: CorrectionTypeTitleYearFix, Details: v.TitleDetails})
	}
	return defects
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CorrectionRecord tracks one attempt to fix one defect in one article.
type CorrectionRecord struct {
	ID             string           `json:"id"`
	ArticleSlug    string           `json:"article_slug"`
	CorrectionType CorrectionType   `json:"correction_type"`
	Status         CorrectionStatus `json:"status"`
	OriginalData   OriginalData     `json:"original_data"`
	ResultData     json.RawMessage  `json:"result_data,omitempty"`    // Parsed payload, set for completed/no_changes_needed
	FailureReason  string           `json:"failure_reason,omitempty"` // Only when status is failed
	Notes          string           `json:"notes,omitempty"`
	Version        int              `json:"version"` // Bumped on every transition, used for claim CAS
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CorrectionType names the defect a record corrects.
type CorrectionType string

const (
	CorrectionTypePressureFix  CorrectionType = "pressure_fix"
	CorrectionTypeTitleYearFix CorrectionType = "title_year_fix"
)

// AllCorrectionTypes lists every correction type the pipeline knows how to run.
func AllCorrectionTypes() []CorrectionType {
	return []CorrectionType{CorrectionTypePressureFix, CorrectionTypeTitleYearFix}
}

// ParseCorrectionType converts a raw string into a known correction type.
func ParseCorrectionType(raw string) (CorrectionType, error) {
	switch CorrectionType(strings.TrimSpace(strings.ToLower(raw))) {
	case CorrectionTypePressureFix:
		return CorrectionTypePressureFix, nil
	case CorrectionTypeTitleYearFix:
		return CorrectionTypeTitleYearFix, nil
	default:
		return "", fmt.Errorf("unknown correction type: %q", raw)
	}
}

// CorrectionStatus is the lifecycle state of a correction record.
type CorrectionStatus string

const (
	CorrectionStatusPending         CorrectionStatus = "pending"           // Waiting to be claimed
	CorrectionStatusProcessing      CorrectionStatus = "processing"        // Claimed, API call in flight
	CorrectionStatusCompleted       CorrectionStatus = "completed"         // Payload applied to the article
	CorrectionStatusFailed          CorrectionStatus = "failed"            // API, parse or apply failure
	CorrectionStatusNoChangesNeeded CorrectionStatus = "no_changes_needed" // Model reported the article is fine
)

// IsTerminal reports whether no further transitions are expected.
func (s CorrectionStatus) IsTerminal() bool {
	switch s {
	case CorrectionStatusCompleted, CorrectionStatusFailed, CorrectionStatusNoChangesNeeded:
		return true
	}
	return false
}

// HasResult reports whether records in this status carry result data.
func (s CorrectionStatus) HasResult() bool {
	return s == CorrectionStatusCompleted || s == CorrectionStatusNoChangesNeeded
}

var validTransitions = map[CorrectionStatus][]CorrectionStatus{
	CorrectionStatusPending: {CorrectionStatusProcessing},
	CorrectionStatusProcessing: {
		CorrectionStatusCompleted,
		CorrectionStatusFailed,
		CorrectionStatusNoChangesNeeded,
		CorrectionStatusPending, // claim abandoned: stuck reset or throttled release
	},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to CorrectionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Priority is the validator's urgency bucket.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// OriginalData is the immutable snapshot used to build the correction prompt.
type OriginalData struct {
	Title             string         `json:"title"`
	VehicleData       VehicleData    `json:"vehicle_data"`
	Introduction      string         `json:"introduction,omitempty"`
	Conclusion        string         `json:"conclusion,omitempty"`
	SEO               SEOData        `json:"seo"`
	FAQ               []FAQItem      `json:"faq,omitempty"`
	ValidationDetails map[string]any `json:"validation_details,omitempty"`
	Priority          Priority       `json:"priority"`
}

// SnapshotArticle captures the fields of an article a correction prompt needs.
func SnapshotArticle(article Article, details map[string]any, priority Priority) OriginalData {
	faq := make([]FAQItem, len(article.Content.FAQ))
	copy(faq, article.Content.FAQ)

	return OriginalData{
		Title:             article.Title,
		VehicleData:       article.Content.VehicleData.Clone(),
		Introduction:      article.Content.Introduction,
		Conclusion:        article.Content.Conclusion,
		SEO:               article.Content.SEO,
		FAQ:               faq,
		ValidationDetails: details,
		Priority:          priority,
	}
}

// CorrectionFilter narrows record listings for the admin API and CLI.
type CorrectionFilter struct {
	Status CorrectionStatus
	Type   CorrectionType
	Slug   string
	Limit  int
}

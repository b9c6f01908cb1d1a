package validation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/autoguides/contentfix/internal/models"
)

var (
	psiPairPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)\s*psi\b`)
	yearPattern    = regexp.MustCompile(`\b(19[5-9]\d|20\d\d)\b`)
)

// Rules bounds what counts as a plausible passenger vehicle pressure.
type Rules struct {
	MinPSI float64
	MaxPSI float64
}

// DefaultRules covers cars, SUVs and light trucks.
func DefaultRules() Rules {
	return Rules{MinPSI: 15, MaxPSI: 80}
}

// RuleValidator flags articles with inconsistent pressure data or a title
// year that does not match the vehicle.
type RuleValidator struct {
	rules Rules
}

// NewRuleValidator creates a validator. Zero rules fall back to DefaultRules.
func NewRuleValidator(rules Rules) *RuleValidator {
	if rules.MinPSI <= 0 && rules.MaxPSI <= 0 {
		rules = DefaultRules()
	}
	return &RuleValidator{rules: rules}
}

type issue struct {
	code     string
	priority models.Priority
}

func (v *RuleValidator) Validate(ctx context.Context, article models.Article) (*models.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.ValidationResult{OverallPriority: models.PriorityLow}

	if issues, details := v.checkPressures(article); len(issues) > 0 {
		result.NeedsPressureCorrection = true
		result.PressureDetails = details
		result.OverallPriority = highest(result.OverallPriority, issues)
	}
	if issues, details := checkTitleYear(article); len(issues) > 0 {
		result.NeedsTitleCorrection = true
		result.TitleDetails = details
		result.OverallPriority = highest(result.OverallPriority, issues)
	}

	result.NeedsAnyCorrection = result.NeedsPressureCorrection || result.NeedsTitleCorrection
	return result, nil
}

func (v *RuleValidator) checkPressures(article models.Article) ([]issue, map[string]any) {
	p := article.Content.VehicleData.Pressures
	var issues []issue
	details := map[string]any{}

	if p.EmptyFront == nil || p.EmptyRear == nil {
		issues = append(issues, issue{"missing_pressure", models.PriorityHigh})
	}

	var implausible []string
	for name, value := range map[string]*float64{
		"empty_front":  p.EmptyFront,
		"empty_rear":   p.EmptyRear,
		"loaded_front": p.LoadedFront,
		"loaded_rear":  p.LoadedRear,
	} {
		if value != nil && (*value < v.rules.MinPSI || *value > v.rules.MaxPSI) {
			implausible = append(implausible, fmt.Sprintf("%s=%s", name, formatPSI(*value)))
		}
	}
	if len(implausible) > 0 {
		issues = append(issues, issue{"implausible_value", models.PriorityHigh})
		sort.Strings(implausible)
		details["implausible"] = implausible
	}

	if mismatch := displayMismatch(p.PressureDisplay, p.EmptyFront, p.EmptyRear); mismatch != "" {
		issues = append(issues, issue{"display_mismatch", models.PriorityMedium})
		details["display"] = mismatch
	}
	if mismatch := displayMismatch(p.LoadedPressureDisplay, p.LoadedFront, p.LoadedRear); mismatch != "" {
		issues = append(issues, issue{"loaded_display_mismatch", models.PriorityMedium})
		details["loaded_display"] = mismatch
	}

	if p.LoadedFront != nil && p.EmptyFront != nil && *p.LoadedFront < *p.EmptyFront ||
		p.LoadedRear != nil && p.EmptyRear != nil && *p.LoadedRear < *p.EmptyRear {
		issues = append(issues, issue{"loaded_below_empty", models.PriorityLow})
	}

	if p.PressureDisplay != "" {
		texts := []struct{ field, text string }{
			{"introduction", article.Content.Introduction},
			{"conclusion", article.Content.Conclusion},
		}
		for _, t := range texts {
			for _, m := range psiPairPattern.FindAllString(t.text, -1) {
				if !sameDisplay(m, p.PressureDisplay) {
					issues = append(issues, issue{"text_mismatch", models.PriorityLow})
					details[t.field] = m
					break
				}
			}
		}
	}

	if len(issues) == 0 {
		return nil, nil
	}
	details["issues"] = issueCodes(issues)
	return issues, details
}

// displayMismatch describes how a "F/R PSI" display disagrees with the
// numeric fields, or returns "" when they agree or cannot be compared.
func displayMismatch(display string, front, rear *float64) string {
	if display == "" || front == nil || rear == nil {
		return ""
	}
	m := psiPairPattern.FindStringSubmatch(display)
	if m == nil {
		return ""
	}
	f, _ := strconv.ParseFloat(m[1], 64)
	r, _ := strconv.ParseFloat(m[2], 64)
	if nearlyEqual(f, *front) && nearlyEqual(r, *rear) {
		return ""
	}
	return fmt.Sprintf("%q does not match %s/%s", display, formatPSI(*front), formatPSI(*rear))
}

func sameDisplay(a, b string) bool {
	ma, mb := psiPairPattern.FindStringSubmatch(a), psiPairPattern.FindStringSubmatch(b)
	if ma == nil || mb == nil {
		return a == b
	}
	af, _ := strconv.ParseFloat(ma[1], 64)
	ar, _ := strconv.ParseFloat(ma[2], 64)
	bf, _ := strconv.ParseFloat(mb[1], 64)
	br, _ := strconv.ParseFloat(mb[2], 64)
	return nearlyEqual(af, bf) && nearlyEqual(ar, br)
}

func checkTitleYear(article models.Article) ([]issue, map[string]any) {
	year := article.Content.VehicleData.Year
	if year == 0 {
		return nil, nil
	}

	var issues []issue
	details := map[string]any{"expected_year": year}

	check := func(field, text string, priority models.Priority) {
		for _, m := range yearPattern.FindAllString(text, -1) {
			found, _ := strconv.Atoi(m)
			if found != year {
				issues = append(issues, issue{field + "_year_mismatch", priority})
				details[field] = found
				return
			}
		}
	}
	check("title", article.Title, models.PriorityHigh)
	check("page_title", article.Content.SEO.PageTitle, models.PriorityMedium)
	check("meta_description", article.Content.SEO.MetaDescription, models.PriorityMedium)

	if len(issues) == 0 {
		return nil, nil
	}
	details["issues"] = issueCodes(issues)
	return issues, details
}

func highest(current models.Priority, issues []issue) models.Priority {
	rank := map[models.Priority]int{models.PriorityLow: 0, models.PriorityMedium: 1, models.PriorityHigh: 2}
	for _, i := range issues {
		if rank[i.priority] > rank[current] {
			current = i.priority
		}
	}
	return current
}

func issueCodes(issues []issue) []string {
	codes := make([]string, len(issues))
	for i, is := range issues {
		codes[i] = is.code
	}
	return codes
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.05
}

func formatPSI(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

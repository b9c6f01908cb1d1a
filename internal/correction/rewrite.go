package correction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TextRewriter re-derives free text that embeds a value which just changed.
type TextRewriter interface {
	// Rewrite replaces occurrences of oldValue in text with newValue and
	// reports whether anything was replaced.
	Rewrite(text, oldValue, newValue string) (string, bool)
}

var psiDisplay = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)\s*psi\s*$`)

// PSIPatternRewriter matches "NN/NN PSI" displays loosely: spacing around the
// slash and the case of the unit do not matter. Values that are not PSI
// displays fall back to literal replacement.
type PSIPatternRewriter struct{}

func (PSIPatternRewriter) Rewrite(text, oldValue, newValue string) (string, bool) {
	if text == "" || oldValue == "" || oldValue == newValue {
		return text, false
	}

	m := psiDisplay.FindStringSubmatch(oldValue)
	if m == nil {
		if !strings.Contains(text, oldValue) {
			return text, false
		}
		return strings.ReplaceAll(text, oldValue, newValue), true
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\s*/\s*%s\s*psi\b`,
		regexp.QuoteMeta(m[1]), regexp.QuoteMeta(m[2])))
	if !pattern.MatchString(text) {
		return text, false
	}
	return pattern.ReplaceAllLiteralString(text, newValue), true
}

// isPSIDisplay reports whether s looks like "NN/NN PSI".
func isPSIDisplay(s string) bool {
	return psiDisplay.MatchString(s)
}

// formatPSIDisplay renders a front/rear pair the way displays are written.
func formatPSIDisplay(front, rear float64) string {
	return fmt.Sprintf("%s/%s PSI", formatPSI(front), formatPSI(rear))
}

func formatPSI(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package correction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/autoguides/contentfix/internal/models"
)

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// ParseResponse extracts the JSON object from a freeform model reply. A fenced
// ```json block wins when present; the object is then cut from the first '{'
// to the last '}'. Every failure wraps ErrParseFailure.
func ParseResponse(raw string) (map[string]any, error) {
	text := raw
	if m := fencedJSONBlock.FindStringSubmatch(raw); m != nil {
		text = m[1]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrParseFailure)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return payload, nil
}

// DecodePayload converts a parsed reply into the typed payload for the
// correction type. A reply without needs_update is treated as an update when
// it carries any corrected_* section, and rejected otherwise.
func DecodePayload(correctionType models.CorrectionType, parsed map[string]any) (models.Payload, error) {
	if _, ok := parsed["needs_update"]; !ok {
		if !hasCorrectedSection(parsed) {
			return nil, fmt.Errorf("%w: response has neither needs_update nor corrected fields", ErrParseFailure)
		}
		withFlag := make(map[string]any, len(parsed)+1)
		for k, v := range parsed {
			withFlag[k] = v
		}
		withFlag["needs_update"] = true
		parsed = withFlag
	}

	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	var payload models.Payload
	switch correctionType {
	case models.CorrectionTypePressureFix:
		payload = &models.PressureCorrectionPayload{}
	case models.CorrectionTypeTitleYearFix:
		payload = &models.TitleSeoCorrectionPayload{}
	default:
		return nil, fmt.Errorf("unsupported correction type %q", correctionType)
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrParseFailure, correctionType, err)
	}
	return payload, nil
}

func hasCorrectedSection(parsed map[string]any) bool {
	for key, value := range parsed {
		if strings.HasPrefix(key, "corrected_") && value != nil {
			return true
		}
	}
	return false
}

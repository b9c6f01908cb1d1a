package correction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/autoguides/contentfix/internal/models"
	"gopkg.in/yaml.v3"
)

// PromptTemplates holds the system prompt and one user prompt template per
// correction type.
type PromptTemplates struct {
	SystemPrompt string
	templates    map[models.CorrectionType]*template.Template
}

// promptFile is the YAML layout of a prompt override file.
type promptFile struct {
	SystemPrompt string            `yaml:"system_prompt"`
	Prompts      map[string]string `yaml:"prompts"`
}

var promptFuncs = template.FuncMap{
	"psi": func(v *float64) string {
		if v == nil {
			return "unknown"
		}
		return formatPSI(*v)
	},
	"json": func(v any) (string, error) {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(raw), nil
	},
}

// NewPromptTemplates returns the built-in prompts.
func NewPromptTemplates() *PromptTemplates {
	p, err := newPromptTemplates(defaultSystemPrompt, map[models.CorrectionType]string{
		models.CorrectionTypePressureFix:  pressureFixTemplate,
		models.CorrectionTypeTitleYearFix: titleYearFixTemplate,
	})
	if err != nil {
		panic(fmt.Sprintf("built-in prompt templates are invalid: %v", err))
	}
	return p
}

// LoadPromptTemplates reads a YAML override file. Prompts it omits keep their
// built-in text.
func LoadPromptTemplates(path string) (*PromptTemplates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var file promptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	system := defaultSystemPrompt
	if strings.TrimSpace(file.SystemPrompt) != "" {
		system = file.SystemPrompt
	}
	sources := map[models.CorrectionType]string{
		models.CorrectionTypePressureFix:  pressureFixTemplate,
		models.CorrectionTypeTitleYearFix: titleYearFixTemplate,
	}
	for name, text := range file.Prompts {
		t, err := models.ParseCorrectionType(name)
		if err != nil {
			return nil, fmt.Errorf("prompts file: %w", err)
		}
		sources[t] = text
	}

	return newPromptTemplates(system, sources)
}

func newPromptTemplates(system string, sources map[models.CorrectionType]string) (*PromptTemplates, error) {
	p := &PromptTemplates{
		SystemPrompt: system,
		templates:    make(map[models.CorrectionType]*template.Template, len(sources)),
	}
	for t, text := range sources {
		tmpl, err := template.New(string(t)).Funcs(promptFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid %s template: %w", t, err)
		}
		p.templates[t] = tmpl
	}
	return p, nil
}

// promptData is what templates see.
type promptData struct {
	Slug string
	models.OriginalData
}

// BuildPrompt renders the user prompt for a record from its original snapshot.
func (p *PromptTemplates) BuildPrompt(rec models.CorrectionRecord) (string, error) {
	tmpl, ok := p.templates[rec.CorrectionType]
	if !ok {
		return "", fmt.Errorf("no prompt template for %s", rec.CorrectionType)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Slug: rec.ArticleSlug, OriginalData: rec.OriginalData}); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", rec.CorrectionType, err)
	}
	return buf.String(), nil
}

const defaultSystemPrompt = `You are an automotive content editor who corrects factual mistakes in published tire pressure guides.

Rules:
- Only correct what is wrong. Never rewrite text that is already accurate.
- Use the vehicle data provided; do not invent trims, sizes or values.
- Respond with a single JSON object and nothing else.`

const pressureFixTemplate = `Review the tire pressure data for the guide "{{.Title}}" (slug: {{.Slug}}).

Vehicle: {{.VehicleData.Year}} {{.VehicleData.Make}} {{.VehicleData.Model}}{{if .VehicleData.Trim}} {{.VehicleData.Trim}}{{end}}
{{- if .VehicleData.TireSize}}
Tire size: {{.VehicleData.TireSize}}{{end}}

Current pressures (PSI):
- empty front: {{psi .VehicleData.Pressures.EmptyFront}}
- empty rear: {{psi .VehicleData.Pressures.EmptyRear}}
- loaded front: {{psi .VehicleData.Pressures.LoadedFront}}
- loaded rear: {{psi .VehicleData.Pressures.LoadedRear}}
- display: "{{.VehicleData.Pressures.PressureDisplay}}"
- loaded display: "{{.VehicleData.Pressures.LoadedPressureDisplay}}"

Introduction:
{{.Introduction}}

Conclusion:
{{.Conclusion}}

Problems reported by validation:
{{json .ValidationDetails}}

Return JSON with this shape. Include only the fields that must change:
{
  "needs_update": true,
  "corrected_pressures": {
    "empty_front": 32,
    "empty_rear": 30,
    "loaded_front": 35,
    "loaded_rear": 38,
    "pressure_display": "32/30 PSI",
    "loaded_pressure_display": "35/38 PSI"
  },
  "corrected_content": {
    "introduction": "...",
    "conclusion": "..."
  },
  "explanation": "short reason"
}
If the data is already correct, return {"needs_update": false, "explanation": "..."}.`

const titleYearFixTemplate = `Check the model year in the title and SEO fields of the guide "{{.Title}}" (slug: {{.Slug}}).

The vehicle is a {{.VehicleData.Year}} {{.VehicleData.Make}} {{.VehicleData.Model}}.

Page title: "{{.SEO.PageTitle}}"
Meta description: "{{.SEO.MetaDescription}}"
{{- if .FAQ}}

FAQ:
{{range .FAQ}}- Q: {{.Question}}
  A: {{.Answer}}
{{end}}{{end}}

Problems reported by validation:
{{json .ValidationDetails}}

Return JSON with this shape. Include only the fields that must change:
{
  "needs_update": true,
  "corrected_content": {"title": "..."},
  "corrected_seo": {"page_title": "...", "meta_description": "..."},
  "corrected_faq": [{"question": "...", "answer": "..."}],
  "explanation": "short reason"
}
Send corrected_faq only when an answer mentions the wrong year, and then send the complete list.
If everything already matches {{.VehicleData.Year}}, return {"needs_update": false, "explanation": "..."}.`

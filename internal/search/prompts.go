package search

import (
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/salescoach/advisor/internal/domain"
)

//go:embed prompts/search_enhancement.yaml
var promptsRaw []byte

//go:embed schemas/query_optimization.json
var optimizationSchema []byte

//go:embed schemas/quality_assessment.json
var assessmentSchema []byte

// promptSection is one prompt pair from the enhancement YAML. The user
// section is a text/template executed against the operation input.
type promptSection struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`

	userTmpl *template.Template
	schema   json.RawMessage
}

func loadPromptSections() (optimize, assess *promptSection, err error) {
	var file struct {
		QueryOptimization promptSection `yaml:"query_optimization"`
		QualityAssessment promptSection `yaml:"quality_assessment"`
	}
	if err := yaml.Unmarshal(promptsRaw, &file); err != nil {
		return nil, nil, domain.ErrConfiguration("parse search enhancement prompts: %v", err)
	}

	if err := file.QueryOptimization.compile("query_optimization", optimizationSchema); err != nil {
		return nil, nil, err
	}
	if err := file.QualityAssessment.compile("quality_assessment", assessmentSchema); err != nil {
		return nil, nil, err
	}
	return &file.QueryOptimization, &file.QualityAssessment, nil
}

func (p *promptSection) compile(name string, schema []byte) error {
	if strings.TrimSpace(p.User) == "" {
		return domain.ErrConfiguration("prompt section %s has no user template", name)
	}
	tmpl, err := template.New(name).Parse(p.User)
	if err != nil {
		return domain.ErrConfiguration("compile prompt section %s: %v", name, err)
	}
	p.userTmpl = tmpl
	p.schema = schema
	return nil
}

// render executes the user template and joins it with the system section
// into a single prompt string.
func (p *promptSection) render(data any) (string, error) {
	var sb strings.Builder
	if err := p.userTmpl.Execute(&sb, data); err != nil {
		return "", domain.ErrConfiguration("render prompt: %v", err)
	}
	parts := []string{}
	if s := strings.TrimSpace(p.System); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, strings.TrimSpace(sb.String()))
	return strings.Join(parts, "\n\n"), nil
}

package advisor

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/salescoach/advisor/internal/domain"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

//go:embed schemas/*.json
var schemaFS embed.FS

// promptTemplate is one service's prompt pair as stored in its YAML file.
// The user section is a text/template executed against the service input.
type promptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`

	userTmpl *template.Template
	schema   json.RawMessage
}

func loadPromptTemplate(kind Kind) (*promptTemplate, error) {
	raw, err := promptFS.ReadFile(fmt.Sprintf("prompts/%s.yaml", kind))
	if err != nil {
		return nil, domain.ErrConfiguration("prompt template for %s: %v", kind, err)
	}

	var tpl promptTemplate
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return nil, domain.ErrConfiguration("parse prompt template for %s: %v", kind, err)
	}
	if strings.TrimSpace(tpl.User) == "" {
		return nil, domain.ErrConfiguration("prompt template for %s has no user section", kind)
	}

	tpl.userTmpl, err = template.New(string(kind)).Parse(tpl.User)
	if err != nil {
		return nil, domain.ErrConfiguration("compile prompt template for %s: %v", kind, err)
	}

	tpl.schema, err = schemaFS.ReadFile(fmt.Sprintf("schemas/%s.json", kind))
	if err != nil {
		return nil, domain.ErrConfiguration("output schema for %s: %v", kind, err)
	}
	return &tpl, nil
}

// render executes the user template and joins it with the system section
// into a single prompt string.
func (t *promptTemplate) render(data any) (string, error) {
	var sb strings.Builder
	if err := t.userTmpl.Execute(&sb, data); err != nil {
		return "", domain.ErrConfiguration("render prompt: %v", err)
	}
	parts := []string{}
	if s := strings.TrimSpace(t.System); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, strings.TrimSpace(sb.String()))
	return strings.Join(parts, "\n\n"), nil
}

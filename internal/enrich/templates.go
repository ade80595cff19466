package enrich

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"go.yaml.in/yaml/v3"
)

// DefaultTemplateKey is used for vulnerability types without a template.
const DefaultTemplateKey = "DEFAULT"

//go:embed templates.yaml
var builtinTemplates []byte

// Template is a static explanation.
type Template struct {
	Description string `yaml:"description"`
	Fix         string `yaml:"fix"`
}

// Templates maps vulnerability-type labels to fallback explanations.
type Templates map[string]Template

// LoadTemplates parses path, or the built-in catalogue when path is empty.
// The result always has a DEFAULT entry.
func LoadTemplates(path string) (Templates, error) {
	data := builtinTemplates
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading templates file: %w", err)
		}
		data = b
	}
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if _, ok := t[DefaultTemplateKey]; !ok {
		return nil, fmt.Errorf("templates must define %s", DefaultTemplateKey)
	}
	return t, nil
}

// Explanation returns the template for vulnType, or DEFAULT.
func (t Templates) Explanation(vulnType string) models.Explanation {
	tpl, ok := t[vulnType]
	if !ok {
		tpl = t[DefaultTemplateKey]
	}
	return models.Explanation{
		Description:   tpl.Description,
		FixSuggestion: tpl.Fix,
		Source:        models.SourceTemplate,
		IsTemplate:    true,
	}
}

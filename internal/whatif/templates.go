package whatif

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is a named set of modifications.
type Template struct {
	Name          string         `yaml:"name" json:"name"`
	Description   string         `yaml:"description" json:"description"`
	Modifications map[string]any `yaml:"modifications" json:"modifications"`
}

// TemplateList is the response for Templates.
type TemplateList struct {
	Templates         map[string]Template `json:"templates"`
	TotalTemplates    int                 `json:"total_templates"`
	UsageInstructions string              `json:"usage_instructions"`
}

func parseTemplates(data []byte) (map[string]Template, error) {
	var out map[string]Template
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for key, t := range out {
		if len(t.Modifications) == 0 {
			return nil, fmt.Errorf("template %s: no modifications", key)
		}
		for path := range t.Modifications {
			if !knownPath(path) {
				return nil, fmt.Errorf("template %s: unknown parameter %s", key, path)
			}
		}
	}
	return out, nil
}

var defaultTemplates = sync.OnceValue(func() map[string]Template {
	t, err := parseTemplates(templatesYAML)
	if err != nil {
		panic(err)
	}
	return t
})

// Templates lists the built-in scenario templates.
func Templates() TemplateList {
	t := defaultTemplates()
	return TemplateList{
		Templates:         t,
		TotalTemplates:    len(t),
		UsageInstructions: "Select a template and customize parameters as needed",
	}
}

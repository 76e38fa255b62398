package templates

import (
	"fmt"
	"strings"
)

// DefaultTemplateName is the template used when --format is not specified.
const DefaultTemplateName = "cue"

var templates = map[string]Template{
	"cue": {
		Name:        "cue",
		Description: "CUE manifest, checked against the embedded schema",
		Default:     true,
	},
	"yaml": {
		Name:        "yaml",
		Description: "YAML manifest",
	},
	"json": {
		Name:        "json",
		Description: "JSON manifest",
	},
	"hcl": {
		Name:        "hcl",
		Description: "HCL manifest with env and string functions",
	},
}

// Get returns a template by name.
func Get(name string) (Template, error) {
	t, ok := templates[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown template %q; valid templates: %s", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// List returns all available templates.
func List() []Template {
	out := make([]Template, 0, len(templates))
	for _, name := range Names() {
		out = append(out, templates[name])
	}
	return out
}

// GetDefault returns the default template.
func GetDefault() Template {
	return templates[DefaultTemplateName]
}

// Names returns all template names.
func Names() []string {
	return []string{"cue", "yaml", "json", "hcl"}
}

// Package templates provides the starter manifests written by opc init.
package templates

// Template is a starter manifest in one manifest format.
type Template struct {
	// Name is the template identifier, which is also the manifest format.
	Name string

	// Description explains what the template contains.
	Description string

	// Default marks the template used when --format is omitted.
	Default bool
}

// TemplateData holds the data passed to template rendering.
type TemplateData struct {
	// Name is the resource the starter operations manage, e.g. "notes".
	Name string
}

// GenerateOptions configures manifest generation.
type GenerateOptions struct {
	// TargetDir is the directory receiving the manifest.
	TargetDir string

	// TemplateName is the template to use.
	TemplateName string

	// Name overrides the resource name derived from TargetDir.
	Name string

	// Force allows overwriting existing files.
	Force bool
}

// GenerateResult contains the result of generation.
type GenerateResult struct {
	// Files lists the created files relative to TargetDir.
	Files []string

	// TemplateName is the template that was used.
	TemplateName string

	// TargetDir is the directory where files were created.
	TargetDir string

	// Name is the resource name the operations were generated for.
	Name string
}

package templates

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opmodel/opc/internal/output"
)

// Generator writes a starter manifest from a template.
type Generator struct {
	opts GenerateOptions
}

// NewGenerator creates a new generator with the given options.
func NewGenerator(opts GenerateOptions) *Generator {
	return &Generator{opts: opts}
}

// Generate renders the template into the target directory.
func (g *Generator) Generate() (*GenerateResult, error) {
	tmpl, err := Get(g.opts.TemplateName)
	if err != nil {
		return nil, err
	}

	name := g.opts.Name
	if name == "" {
		abs, err := filepath.Abs(g.opts.TargetDir)
		if err != nil {
			return nil, fmt.Errorf("resolving target directory: %w", err)
		}
		name = SanitizeName(filepath.Base(abs))
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := g.checkTargetDir(); err != nil {
		return nil, err
	}

	output.Debug("generating manifest",
		"template", tmpl.Name,
		"name", name,
		"target", g.opts.TargetDir)

	files, err := NewRenderer(TemplateData{Name: name}).RenderTemplate(tmpl.Name)
	if err != nil {
		return nil, fmt.Errorf("rendering template: %w", err)
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		target := filepath.Join(g.opts.TargetDir, f.TargetPath)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", filepath.Dir(target), err)
		}
		if !g.opts.Force {
			if _, err := os.Stat(target); err == nil {
				return nil, fmt.Errorf("file %s already exists; use --force to overwrite", target)
			}
		}
		if err := os.WriteFile(target, f.Content, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", target, err)
		}
		output.Debug("created file", "path", f.TargetPath)
		created = append(created, f.TargetPath)
	}

	return &GenerateResult{
		Files:        created,
		TemplateName: tmpl.Name,
		TargetDir:    g.opts.TargetDir,
		Name:         name,
	}, nil
}

func (g *Generator) checkTargetDir() error {
	info, err := os.Stat(g.opts.TargetDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking target directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", g.opts.TargetDir)
	}
	return nil
}

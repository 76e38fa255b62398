package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"
)

// TemplateFS holds one directory of .tmpl files per template.
//
//go:embed files
var TemplateFS embed.FS

// Renderer handles template rendering with data substitution.
type Renderer struct {
	data TemplateData
}

// NewRenderer creates a new renderer with the given template data.
func NewRenderer(data TemplateData) *Renderer {
	return &Renderer{data: data}
}

// RenderFile renders a single template file and returns the content.
func (r *Renderer) RenderFile(content []byte) ([]byte, error) {
	tmpl, err := template.New("file").Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.data); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}
	return buf.Bytes(), nil
}

// TemplateFile is a file generated from a template.
type TemplateFile struct {
	// SourcePath is the path within the embedded filesystem.
	SourcePath string

	// TargetPath is the output path with the .tmpl suffix removed.
	TargetPath string

	// Content is the rendered content.
	Content []byte
}

// RenderTemplate renders all files of a template.
func (r *Renderer) RenderTemplate(templateName string) ([]TemplateFile, error) {
	root := path.Join("files", templateName)
	var files []TemplateFile

	err := fs.WalkDir(TemplateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".tmpl") {
			return nil
		}

		content, err := fs.ReadFile(TemplateFS, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		rendered, err := r.RenderFile(content)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", p, err)
		}

		files = append(files, TemplateFile{
			SourcePath: p,
			TargetPath: strings.TrimSuffix(strings.TrimPrefix(p, root+"/"), ".tmpl"),
			Content:    rendered,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking template %s: %w", templateName, err)
	}
	return files, nil
}

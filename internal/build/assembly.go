package build

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// UnitName is the file name of the generated source unit.
const UnitName = "generated.go"

// GeneratedPackage is the package clause of the generated unit.
const GeneratedPackage = "generated"

var headerTemplate = template.Must(template.New("header").Parse(`// Code generated by opc. DO NOT EDIT.
{{- if .Digest}}
// Digest: {{.Digest}}
{{- end}}

package {{.Package}}

import (
{{- range .Std}}
	{{if .Alias}}{{.Alias}} {{end}}"{{.Path}}"
{{- end}}
{{- if and .Std .Other}}
{{end}}
{{- range .Other}}
	{{if .Alias}}{{.Alias}} {{end}}"{{.Path}}"
{{- end}}
)
`))

var typeTemplate = template.Must(template.New("type").Parse(`
// {{.TypeName}} is the compiled executor for operation {{printf "%q" .Operation}}.
type {{.TypeName}} struct {
	rt *opcrt.Runtime
}

// New{{.TypeName}} binds the executor to its runtime.
func New{{.TypeName}}(rt *opcrt.Runtime) opcrt.Executor {
	return &{{.TypeName}}{rt: rt}
}

var _ opcrt.Executor = (*{{.TypeName}})(nil)

`))

// Assembly is the rendered source unit holding one executor type per
// method.
type Assembly struct {
	// Package is the package clause of the unit.
	Package string

	// Unit is the file name used in diagnostics.
	Unit string

	// Digest identifies the configuration the unit was built from.
	Digest string

	// Methods are the generated methods in registration order.
	Methods []*Method

	// Source is the rendered unit.
	Source []byte

	positions map[*Instr]Pos
	typeLines map[*Method]int
}

type headerData struct {
	Digest  string
	Package string
	Std     []ImportSpec
	Other   []ImportSpec
}

// NewAssembly renders methods into a single unit. Type names that collide
// after conversion get a numeric suffix, in method order.
func NewAssembly(digest string, methods []*Method) (*Assembly, error) {
	a := &Assembly{
		Package:   GeneratedPackage,
		Unit:      UnitName,
		Digest:    digest,
		Methods:   methods,
		positions: make(map[*Instr]Pos),
		typeLines: make(map[*Method]int),
	}

	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		base := m.TypeName
		for n := 2; seen[m.TypeName]; n++ {
			m.TypeName = fmt.Sprintf("%s%dExecutor", strings.TrimSuffix(base, "Executor"), n)
		}
		seen[m.TypeName] = true
	}

	// First pass registers every import so aliases are fixed before the
	// header is written.
	imports := NewImports()
	for _, m := range methods {
		m.render(NewSourceWriter(imports))
	}

	data := headerData{Digest: digest, Package: a.Package}
	for _, spec := range imports.Specs() {
		if spec.Std {
			data.Std = append(data.Std, spec)
		} else {
			data.Other = append(data.Other, spec)
		}
	}

	w := NewSourceWriter(imports)
	var buf bytes.Buffer
	if err := headerTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering unit header: %w", err)
	}
	w.Raw(buf.String())

	for _, m := range methods {
		buf.Reset()
		if err := typeTemplate.Execute(&buf, m); err != nil {
			return nil, fmt.Errorf("rendering type %s: %w", m.TypeName, err)
		}
		w.Raw(buf.String())
		a.typeLines[m] = w.NextLine()
		m.render(w)
	}

	for ins, pos := range w.Positions() {
		a.positions[ins] = pos
	}
	a.Source = []byte(w.String())
	return a, nil
}

// Position returns the generated position of ins.
func (a *Assembly) Position(ins *Instr) (Pos, bool) {
	p, ok := a.positions[ins]
	return p, ok
}

// MethodLine returns the line of m's Execute declaration comment.
func (a *Assembly) MethodLine(m *Method) int {
	return a.typeLines[m]
}

// Method returns the method compiled for the named operation.
func (a *Assembly) Method(operation string) (*Method, bool) {
	for _, m := range a.Methods {
		if m.Operation == operation {
			return m, true
		}
	}
	return nil, false
}

// TypeNames returns the generated type names in method order.
func (a *Assembly) TypeNames() []string {
	names := make([]string, len(a.Methods))
	for i, m := range a.Methods {
		names[i] = m.TypeName
	}
	return names
}

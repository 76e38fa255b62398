package build

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RuntimeImportPath is the package generated executors call into.
const RuntimeImportPath = "github.com/opmodel/opc/pkg/opcrt"

// identifiers used by generated method bodies; import aliases avoid them.
var reservedIdents = map[string]bool{
	"ctx": true, "op": true, "in": true, "err": true, "e": true, "scope": true,
	"any": true, "nil": true,
}

// Imports assigns deterministic aliases to the packages generated code
// refers to.
type Imports struct {
	byPath  map[string]string
	byAlias map[string]string
}

// NewImports returns an import set pre-seeded with context and the runtime.
func NewImports() *Imports {
	im := &Imports{byPath: make(map[string]string), byAlias: make(map[string]string)}
	im.add("context", "context")
	im.add(RuntimeImportPath, "opcrt")
	return im
}

func (im *Imports) add(path, alias string) string {
	if a, ok := im.byPath[path]; ok {
		return a
	}
	if isLocalIdent(alias) {
		alias += "pkg"
	}
	base := alias
	for n := 2; im.byAlias[alias] != "" || reservedIdents[alias]; n++ {
		alias = fmt.Sprintf("%s%d", base, n)
	}
	im.byPath[path] = alias
	im.byAlias[alias] = path
	return alias
}

// isLocalIdent reports whether name has the shape of a generated local
// (v3, out12).
func isLocalIdent(name string) bool {
	for _, prefix := range []string{"v", "out"} {
		rest, ok := strings.CutPrefix(name, prefix)
		if ok && rest != "" && strings.Trim(rest, "0123456789") == "" {
			return true
		}
	}
	return false
}

// Specs returns import specs sorted by path, standard library first.
func (im *Imports) Specs() []ImportSpec {
	specs := make([]ImportSpec, 0, len(im.byPath))
	for path, alias := range im.byPath {
		spec := ImportSpec{Path: path, Std: !strings.Contains(strings.SplitN(path, "/", 2)[0], ".")}
		if alias != lastElem(path) {
			spec.Alias = alias
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Std != specs[j].Std {
			return specs[i].Std
		}
		return specs[i].Path < specs[j].Path
	})
	return specs
}

// ImportSpec is one import line.
type ImportSpec struct {
	Alias string
	Path  string
	Std   bool
}

func lastElem(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// TypeExpr renders t as a Go type expression, registering the packages it
// needs. Types generated code cannot name (unexported, package main,
// generic instantiations, unnamed structs) render as any; values still flow
// through the runtime untyped.
func (im *Imports) TypeExpr(t reflect.Type) string {
	if !nameable(t) {
		return "any"
	}
	return im.typeExpr(t)
}

func (im *Imports) typeExpr(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		pkgName := t.String()[:strings.LastIndex(t.String(), "."+t.Name())]
		return im.add(t.PkgPath(), pkgName) + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + im.typeExpr(t.Elem())
	case reflect.Slice:
		return "[]" + im.typeExpr(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), im.typeExpr(t.Elem()))
	case reflect.Map:
		return "map[" + im.typeExpr(t.Key()) + "]" + im.typeExpr(t.Elem())
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + im.typeExpr(t.Elem())
		case reflect.SendDir:
			return "chan<- " + im.typeExpr(t.Elem())
		default:
			return "chan " + im.typeExpr(t.Elem())
		}
	case reflect.Interface:
		return "any"
	case reflect.Func:
		return im.funcExpr(t)
	default:
		return "any"
	}
}

func (im *Imports) funcExpr(t reflect.Type) string {
	var b strings.Builder
	b.WriteString("func(")
	for i := 0; i < t.NumIn(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if t.IsVariadic() && i == t.NumIn()-1 {
			b.WriteString("..." + im.typeExpr(t.In(i).Elem()))
			continue
		}
		b.WriteString(im.typeExpr(t.In(i)))
	}
	b.WriteString(")")
	switch t.NumOut() {
	case 0:
	case 1:
		b.WriteString(" " + im.typeExpr(t.Out(0)))
	default:
		b.WriteString(" (")
		for i := 0; i < t.NumOut(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(im.typeExpr(t.Out(i)))
		}
		b.WriteString(")")
	}
	return b.String()
}

func nameable(t reflect.Type) bool {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return true
		}
		if t.PkgPath() == "main" || strings.Contains(t.Name(), "[") {
			return false
		}
		r, _ := utf8.DecodeRuneInString(t.Name())
		return unicode.IsUpper(r)
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan:
		return nameable(t.Elem())
	case reflect.Map:
		return nameable(t.Key()) && nameable(t.Elem())
	case reflect.Interface:
		return t.NumMethod() == 0
	case reflect.Func:
		for i := 0; i < t.NumIn(); i++ {
			if !nameable(t.In(i)) {
				return false
			}
		}
		for i := 0; i < t.NumOut(); i++ {
			if !nameable(t.Out(i)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Pos is a 1-based position in generated source.
type Pos struct {
	Line   int
	Column int
}

// SourceWriter accumulates generated Go source line by line and records the
// position of each instruction it emits.
type SourceWriter struct {
	imports   *Imports
	buf       bytes.Buffer
	indent    int
	line      int
	positions map[*Instr]Pos
}

// NewSourceWriter creates a writer whose first line is line 1.
func NewSourceWriter(imports *Imports) *SourceWriter {
	return NewSourceWriterAt(imports, 1)
}

// NewSourceWriterAt creates a writer whose first line is numbered line.
func NewSourceWriterAt(imports *Imports, line int) *SourceWriter {
	return &SourceWriter{imports: imports, line: line, positions: make(map[*Instr]Pos)}
}

// Line writes one indented line.
func (w *SourceWriter) Line(format string, args ...any) {
	if format == "" {
		w.buf.WriteByte('\n')
		w.line++
		return
	}
	w.buf.WriteString(strings.Repeat("\t", w.indent))
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
	w.line++
}

// Raw writes text verbatim. The text must end in a newline.
func (w *SourceWriter) Raw(text string) {
	w.buf.WriteString(text)
	w.line += strings.Count(text, "\n")
}

// In increases indentation.
func (w *SourceWriter) In() { w.indent++ }

// Out decreases indentation.
func (w *SourceWriter) Out() { w.indent-- }

// Mark records ins at the next line written.
func (w *SourceWriter) Mark(ins *Instr) {
	w.positions[ins] = Pos{Line: w.line, Column: w.indent + 1}
}

// Positions returns the recorded instruction positions.
func (w *SourceWriter) Positions() map[*Instr]Pos {
	return w.positions
}

// Imports returns the writer's import set.
func (w *SourceWriter) Imports() *Imports {
	return w.imports
}

// NextLine returns the number of the next line to be written.
func (w *SourceWriter) NextLine() int {
	return w.line
}

// String returns the accumulated source.
func (w *SourceWriter) String() string {
	return w.buf.String()
}

// render emits the Execute method of m.
func (m *Method) render(w *SourceWriter) {
	im := w.Imports()
	w.Line("// Execute runs operation %q.", m.Operation)
	if m.Async {
		w.Line("//")
		w.Line("// Suspends at: %s.", strings.Join(m.SuspensionPoints(), ", "))
	}
	w.Line("func (e *%s) Execute(ctx context.Context, op any) (any, error) {", m.TypeName)
	w.In()
	if m.Slots[ArgumentSlot].Used {
		w.Line("in := opcrt.As[%s](op)", im.TypeExpr(m.Slots[ArgumentSlot].Type))
	}
	if len(m.Resolution.Services) > 0 {
		w.Line("scope := e.rt.Scope()")
	}
	m.renderBlock(w, m.Body)
	w.Out()
	w.Line("}")
}

func (m *Method) renderBlock(w *SourceWriter, block []Instr) {
	im := w.Imports()
	for i := range block {
		ins := &block[i]
		switch ins.Op {
		case OpResolve:
			slot := m.Slots[ins.Slot]
			w.Mark(ins)
			if !slot.Used {
				w.Line("if _, err := opcrt.Resolve[%s](ctx, scope); err != nil {", im.TypeExpr(slot.Type))
				w.Line("\treturn nil, err")
				w.Line("}")
				continue
			}
			w.Line("%s, err := opcrt.Resolve[%s](ctx, scope)", slot.Ident, im.TypeExpr(slot.Type))
			w.Line("if err != nil {")
			w.Line("\treturn nil, err")
			w.Line("}")

		case OpCall, OpAwait:
			f := m.Frames[ins.Frame]
			m.renderDoc(w, ins)
			call := fmt.Sprintf("e.rt.Call(ctx, %d%s)", ins.Frame, m.argList(ins.Args))
			if ins.Op == OpAwait {
				call = fmt.Sprintf("e.rt.Go(ctx, %d%s).Await(ctx)", ins.Frame, m.argList(ins.Args))
			}
			w.Mark(ins)
			if !m.anyUsed(ins.Results) {
				w.Line("if _, err := %s; err != nil {", call)
				w.Line("\treturn nil, err")
				w.Line("}")
				continue
			}
			out := fmt.Sprintf("out%d", ins.Frame)
			w.Line("%s, err := %s", out, call)
			w.Line("if err != nil {")
			w.Line("\treturn nil, err")
			w.Line("}")
			for i, s := range ins.Results {
				if m.Slots[s].Used {
					w.Line("%s := opcrt.As[%s](%s[%d])", m.Slots[s].Ident, im.TypeExpr(f.Outputs[i].Type), out, i)
				}
			}

		case OpWrap:
			f := m.Frames[ins.Frame]
			m.renderDoc(w, ins)
			param := "_"
			if m.anyUsed(ins.Results) {
				param = fmt.Sprintf("out%d", ins.Frame)
			}
			w.Mark(ins)
			w.Line("return e.rt.Wrap(ctx, %d, []any{%s}, func(ctx context.Context, %s []any) (any, error) {",
				ins.Frame, m.idents(ins.Args), param)
			w.In()
			for i, s := range ins.Results {
				if m.Slots[s].Used {
					w.Line("%s := opcrt.As[%s](%s[%d])", m.Slots[s].Ident, im.TypeExpr(f.Outputs[i].Type), param, i)
				}
			}
			m.renderBlock(w, ins.Body)
			w.Out()
			w.Line("})")
			return
		}
	}
	m.renderReturn(w)
}

func (m *Method) renderDoc(w *SourceWriter, ins *Instr) {
	f := m.Frames[ins.Frame]
	kind := f.Mode.String()
	if f.Nested {
		kind = "nested"
	}
	w.Line("// %s (%s)", sanitizeComment(f.Name), kind)
	for _, line := range f.Doc {
		w.Line("//   %s", sanitizeComment(line))
	}
}

func (m *Method) renderReturn(w *SourceWriter) {
	if m.Result < 0 {
		w.Line("return nil, nil")
		return
	}
	w.Line("return %s, nil", m.Slots[m.Result].Ident)
}

func (m *Method) anyUsed(slots []int) bool {
	for _, s := range slots {
		if m.Slots[s].Used {
			return true
		}
	}
	return false
}

func (m *Method) argList(args []int) string {
	if len(args) == 0 {
		return ""
	}
	return ", " + m.idents(args)
}

func (m *Method) idents(slots []int) string {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = m.Slots[s].Ident
	}
	return strings.Join(names, ", ")
}

func sanitizeComment(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "*/", "* /").Replace(s)
}

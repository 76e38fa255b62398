package build

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
)

// BuildError is implemented by every build-time failure. All of them abort
// startup.
type BuildError interface {
	error

	// Operation returns the operation whose method failed, if known.
	Operation() string
}

// UnresolvedDependencyError indicates a frame input has no producer and is
// not resolvable from the service container.
type UnresolvedDependencyError struct {
	// OperationName is the operation being built.
	OperationName string

	// Frame is the frame that requires the Variable. Empty when the
	// requirement is the method result or a builder's service request.
	Frame string

	// Variable is the missing input.
	Variable core.Variable
}

func (e *UnresolvedDependencyError) Error() string {
	who := "method result"
	if e.Frame != "" {
		who = fmt.Sprintf("frame %q", e.Frame)
	}
	return fmt.Sprintf("operation %q: %s requires %s: no producing frame and not resolvable from the container",
		e.OperationName, who, e.Variable)
}

func (e *UnresolvedDependencyError) Operation() string {
	return e.OperationName
}

func (e *UnresolvedDependencyError) Unwrap() error {
	return oerrors.ErrUnresolvedDependency
}

// CyclicDependencyError indicates a frame's resolution path revisits it.
type CyclicDependencyError struct {
	// OperationName is the operation being built.
	OperationName string

	// Path lists frame names from the first visit to the revisit.
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("operation %q: cyclic dependency: %s", e.OperationName, strings.Join(e.Path, " -> "))
}

func (e *CyclicDependencyError) Operation() string {
	return e.OperationName
}

func (e *CyclicDependencyError) Unwrap() error {
	return oerrors.ErrCyclicDependency
}

// CompilationError indicates the generated unit failed to compile. The unit
// is machine-generated, so this is always a framework defect.
type CompilationError struct {
	// Unit is the generated file name.
	Unit string

	// OperationName is the operation whose method failed, if known.
	OperationName string

	// Frame is the frame whose statement failed, if known.
	Frame string

	// Line and Column locate the failure in the generated unit (1-based).
	Line   int
	Column int

	// Diagnostic is the compiler message.
	Diagnostic string

	// Cause is the underlying error, if any.
	Cause error

	source []byte
}

func (e *CompilationError) Error() string {
	var b strings.Builder
	b.WriteString("compiling ")
	b.WriteString(e.Unit)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
	}
	b.WriteString(": ")
	if e.OperationName != "" {
		fmt.Fprintf(&b, "operation %q: ", e.OperationName)
	}
	if e.Frame != "" {
		fmt.Fprintf(&b, "frame %q: ", e.Frame)
	}
	b.WriteString(e.Diagnostic)
	return b.String()
}

func (e *CompilationError) Operation() string {
	return e.OperationName
}

func (e *CompilationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{oerrors.ErrCompilation, e.Cause}
	}
	return []error{oerrors.ErrCompilation}
}

// Lipgloss styles for compilation reports. They mirror the palette in
// internal/output without importing it.
var (
	errStyleFrame    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errStyleDim      = lipgloss.NewStyle().Faint(true)
	errStylePosition = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errStyleMarker   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("204"))
)

// Details renders a multi-line report with the failing generated lines.
// It is meant for framework developers running `opc build`, never for
// request-time responses.
//
//	frame "price": cannot use int as string
//	    → generated.go:41:2
//	   40 | 	// price (sync)
//	 > 41 | 	out2, err := e.rt.Call(ctx, 2, v1)
func (e *CompilationError) Details() string {
	var b strings.Builder
	if e.Frame != "" {
		b.WriteString(errStyleFrame.Render(fmt.Sprintf("frame %q", e.Frame)))
		b.WriteString(": ")
	}
	b.WriteString(e.Diagnostic)
	if e.Line <= 0 {
		return b.String()
	}
	b.WriteString("\n    ")
	b.WriteString(errStyleDim.Render("→ " + e.Unit + ":"))
	b.WriteString(errStylePosition.Render(fmt.Sprintf("%d:%d", e.Line, e.Column)))

	lines := strings.Split(string(e.source), "\n")
	for n := e.Line - 2; n <= e.Line+1; n++ {
		if n < 1 || n > len(lines) {
			continue
		}
		marker := "  "
		if n == e.Line {
			marker = errStyleMarker.Render("> ")
		}
		fmt.Fprintf(&b, "\n %s%s %s", marker, errStyleDim.Render(fmt.Sprintf("%4d |", n)), lines[n-1])
	}
	return b.String()
}

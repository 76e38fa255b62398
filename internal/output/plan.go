package output

import (
	"fmt"
	"io"
	"strings"
)

// OperationPlan is the printable build plan of one operation. It mirrors
// the pipeline's plan without importing it.
type OperationPlan struct {
	Operation string            `json:"operation" yaml:"operation"`
	Verb      string            `json:"verb,omitempty" yaml:"verb,omitempty"`
	Route     string            `json:"route,omitempty" yaml:"route,omitempty"`
	Type      string            `json:"type" yaml:"type"`
	Labels    []string          `json:"labels,omitempty" yaml:"labels,omitempty"`
	Result    string            `json:"result,omitempty" yaml:"result,omitempty"`
	Async     bool              `json:"async" yaml:"async"`
	Suspends  []string          `json:"suspends,omitempty" yaml:"suspends,omitempty"`
	Builders  []BuilderDecision `json:"builders" yaml:"builders"`
	Frames    []PlannedFrame    `json:"frames" yaml:"frames"`
	Pruned    []string          `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Services  []string          `json:"services,omitempty" yaml:"services,omitempty"`
}

// BuilderDecision records whether a middleware builder matched.
type BuilderDecision struct {
	Name    string `json:"name" yaml:"name"`
	Matched bool   `json:"matched" yaml:"matched"`
	Reason  string `json:"reason" yaml:"reason"`
}

// PlannedFrame is one frame in emission order.
type PlannedFrame struct {
	Name    string   `json:"name" yaml:"name"`
	Mode    string   `json:"mode" yaml:"mode"`
	Origin  string   `json:"origin,omitempty" yaml:"origin,omitempty"`
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// PlanOptions controls plan output.
type PlanOptions struct {
	// Format selects text, table, json or yaml.
	Format OutputFormat

	// Writer is the output destination.
	Writer io.Writer
}

// WritePlan writes the build plans of every operation.
func WritePlan(plans []OperationPlan, opts PlanOptions) error {
	switch opts.Format {
	case FormatJSON, FormatYAML:
		return WriteValue(opts.Writer, opts.Format, plans)
	case FormatTable:
		return writePlanTable(plans, opts.Writer)
	default:
		return writePlanHuman(plans, opts.Writer)
	}
}

func writePlanTable(plans []OperationPlan, w io.Writer) error {
	t := NewTable("OPERATION", "VERB", "ROUTE", "FRAMES", "PRUNED", "ASYNC")
	for _, p := range plans {
		t.Row(p.Operation, p.Verb, p.Route,
			fmt.Sprintf("%d", len(p.Frames)), fmt.Sprintf("%d", len(p.Pruned)), fmt.Sprintf("%t", p.Async))
	}
	_, err := io.WriteString(w, t.String()+"\n")
	return err
}

func writePlanHuman(plans []OperationPlan, w io.Writer) error {
	var sb strings.Builder
	for i, p := range plans {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(FormatOperationLine(p.Verb, p.Route, p.Operation, StatusMatched) + "\n")
		sb.WriteString(fmt.Sprintf("  Type:   %s\n", p.Type))
		if p.Result != "" {
			sb.WriteString(fmt.Sprintf("  Result: %s\n", p.Result))
		}
		if len(p.Labels) > 0 {
			sb.WriteString(fmt.Sprintf("  Labels: %s\n", strings.Join(p.Labels, ", ")))
		}

		sb.WriteString("  Middleware:\n")
		for _, b := range p.Builders {
			mark := StyleDim.Render("✗")
			if b.Matched {
				mark = "✓"
			}
			sb.WriteString(fmt.Sprintf("    %s %s", mark, b.Name))
			if b.Reason != "" {
				sb.WriteString(StyleDim.Render(" (" + b.Reason + ")"))
			}
			sb.WriteString("\n")
		}

		sb.WriteString("  Frames:\n")
		for n, f := range p.Frames {
			origin := f.Origin
			if origin == "" {
				origin = "handler"
			}
			sb.WriteString(fmt.Sprintf("    %2d. %s %s %s\n", n+1, StyleNoun.Render(f.Name),
				StyleDim.Render("["+f.Mode+"]"), StyleDim.Render(origin)))
			if len(f.Inputs) > 0 {
				sb.WriteString(fmt.Sprintf("        in:  %s\n", strings.Join(f.Inputs, ", ")))
			}
			if len(f.Outputs) > 0 {
				sb.WriteString(fmt.Sprintf("        out: %s\n", strings.Join(f.Outputs, ", ")))
			}
		}

		if len(p.Pruned) > 0 {
			sb.WriteString(fmt.Sprintf("  Pruned:   %s\n", strings.Join(p.Pruned, ", ")))
		}
		if len(p.Services) > 0 {
			sb.WriteString(fmt.Sprintf("  Services: %s\n", strings.Join(p.Services, ", ")))
		}
		if p.Async {
			sb.WriteString(fmt.Sprintf("  Suspends: %s\n", strings.Join(p.Suspends, ", ")))
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

package pipeline

import (
	"github.com/opmodel/opc/internal/build"
	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/middleware"
	"github.com/opmodel/opc/internal/output"
)

// Report describes a build.
type Report struct {
	// Digest is the cache key of the compiled unit.
	Digest string

	// CacheHit is set when compilation was skipped.
	CacheHit bool

	// Backend names the compile backend.
	Backend string

	// Emitted is the path of the written unit, if any.
	Emitted string

	// Operations holds one entry per successfully lowered operation.
	Operations []*OperationReport

	// Assembly is the generated unit. Nil when the build stopped earlier.
	Assembly *build.Assembly
}

// OperationReport is the front-end result of one operation.
type OperationReport struct {
	Descriptor *core.OperationDescriptor
	Builders   []middleware.MatchDetail
	Method     *build.Method

	// Origins maps every frame, kept or pruned, to the builder that
	// appended it. Handlers map to "".
	Origins map[*core.Frame]string
}

// Plans converts the report for printing.
func (r *Report) Plans() []output.OperationPlan {
	plans := make([]output.OperationPlan, 0, len(r.Operations))
	for _, op := range r.Operations {
		plans = append(plans, op.Plan())
	}
	return plans
}

// Plan converts one operation for printing.
func (o *OperationReport) Plan() output.OperationPlan {
	d, m := o.Descriptor, o.Method
	p := output.OperationPlan{
		Operation: d.Name,
		Verb:      d.Verb,
		Route:     d.Route,
		Type:      d.Type.String(),
		Labels:    d.SortedLabels(),
		Async:     m.Async,
		Suspends:  m.SuspensionPoints(),
		Builders:  make([]output.BuilderDecision, 0, len(o.Builders)),
		Frames:    make([]output.PlannedFrame, 0, len(m.Frames)),
	}
	if m.Result >= 0 {
		p.Result = m.Slots[m.Result].Type.String()
	}
	for _, b := range o.Builders {
		p.Builders = append(p.Builders, output.BuilderDecision{Name: b.Builder, Matched: b.Matched, Reason: b.Reason})
	}
	for _, f := range m.Frames {
		mode := f.Mode.String()
		if f.Nested {
			mode = "nested"
		}
		p.Frames = append(p.Frames, output.PlannedFrame{
			Name:    f.Name,
			Mode:    mode,
			Origin:  o.Origins[f],
			Inputs:  variables(f.Inputs),
			Outputs: variables(f.Outputs),
		})
	}
	for _, f := range m.Resolution.Pruned {
		p.Pruned = append(p.Pruned, f.Name)
	}
	for _, t := range m.Resolution.Services {
		p.Services = append(p.Services, t.String())
	}
	return p
}

func variables(vars []core.Variable) []string {
	if len(vars) == 0 {
		return nil
	}
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.String()
	}
	return out
}

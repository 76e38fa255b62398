package manifest

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	oerrors "github.com/opmodel/opc/internal/errors"
)

type hclFile struct {
	Operations []hclOperation `hcl:"operation,block"`
}

type hclOperation struct {
	Name     string            `hcl:"name,label"`
	Verb     string            `hcl:"verb,optional"`
	Route    string            `hcl:"route,optional"`
	Labels   map[string]string `hcl:"labels,optional"`
	Required []string          `hcl:"required,optional"`
	Result   string            `hcl:"result,optional"`
	Steps    []hclStep         `hcl:"step,block"`
}

type hclStep struct {
	Name   string   `hcl:"name,label"`
	Expr   string   `hcl:"expr"`
	Uses   []string `hcl:"uses,optional"`
	Async  bool     `hcl:"async,optional"`
	Always bool     `hcl:"always,optional"`
}

// evalContext exposes the process environment as env.NAME plus a few
// string functions.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
		Functions: map[string]function.Function{
			"upper": stdlib.UpperFunc,
			"lower": stdlib.LowerFunc,
			"join":  stdlib.JoinFunc,
		},
	}
}

func decodeHCL(data []byte, filename string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, oerrors.NewValidationError(diags.Error(), filename, "", "")
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &raw); diags.HasErrors() {
		return nil, oerrors.NewValidationError(diags.Error(), filename, "", "")
	}

	m := &Manifest{Operations: make([]Operation, 0, len(raw.Operations))}
	for _, op := range raw.Operations {
		out := Operation{
			Name:     op.Name,
			Verb:     op.Verb,
			Route:    op.Route,
			Labels:   op.Labels,
			Required: op.Required,
			Result:   op.Result,
			Steps:    make([]Step, 0, len(op.Steps)),
		}
		for _, s := range op.Steps {
			out.Steps = append(out.Steps, Step(s))
		}
		m.Operations = append(m.Operations, out)
	}
	return m, nil
}

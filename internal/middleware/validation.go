package middleware

import (
	"context"
	"fmt"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
)

// Validator is implemented by operations that check their own input.
type Validator interface {
	Validate() error
}

var validatorType = core.TypeOf[Validator]()

// Validation runs Validate on operations implementing Validator. Its frame
// consumes the operation through the interface, so it binds to the
// argument by interface match.
type Validation struct{}

func NewValidation() *Validation { return &Validation{} }

func (v *Validation) Name() string { return "validation" }

func (v *Validation) Matches(d *core.OperationDescriptor) bool {
	return d.Type.Implements(validatorType) && !disabled(d, v.Name())
}

func (v *Validation) Explain(d *core.OperationDescriptor, matched bool) string {
	switch {
	case matched:
		return fmt.Sprintf("%s implements Validate", d.Type)
	case disabled(d, v.Name()):
		return "disabled by label"
	default:
		return fmt.Sprintf("%s does not implement Validate", d.Type)
	}
}

func (v *Validation) Build(mc *core.MethodContext) error {
	f := core.NewFrame("validate", core.ModeSync,
		[]core.Variable{{Type: validatorType}}, nil,
		func(_ context.Context, args []any) ([]any, error) {
			return nil, validate(args[0])
		})
	f.Required = true
	f.Doc = []string{"rejects invalid operations before any handler runs"}
	return mc.Append(f)
}

func validate(arg any) error {
	val, ok := arg.(Validator)
	if !ok || val == nil {
		return nil
	}
	if err := val.Validate(); err != nil {
		return fmt.Errorf("%w: %w", oerrors.ErrValidation, err)
	}
	return nil
}

package pipeline

import (
	"errors"

	"github.com/opmodel/opc/internal/build"
	"github.com/opmodel/opc/internal/executor"
)

// DuplicateConfigurationError is returned when operations are configured
// more than once.
type DuplicateConfigurationError = executor.DuplicateConfigurationError

// Failures flattens a build error into its per-operation failures. Errors
// that name no operation are returned under the empty key.
func Failures(err error) map[string][]error {
	out := make(map[string][]error)
	for _, e := range flatten(err) {
		var be build.BuildError
		if errors.As(e, &be) {
			out[be.Operation()] = append(out[be.Operation()], e)
			continue
		}
		out[""] = append(out[""], e)
	}
	return out
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		// Only errors.Join results are split; typed multi-cause errors stay
		// whole.
		if _, typed := err.(build.BuildError); !typed {
			var out []error
			for _, e := range joined.Unwrap() {
				out = append(out, flatten(e)...)
			}
			return out
		}
	}
	return []error{err}
}

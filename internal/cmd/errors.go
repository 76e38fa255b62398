package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/build"
	"github.com/opmodel/opc/internal/cmdtypes"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/pipeline"
)

// exitError attaches the exit code matching err. Build failures are printed
// here, one block per operation, and marked as printed.
func exitError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *cmdtypes.ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	code := oerrors.ExitCodeFromError(err)
	if code != cmdtypes.ExitBuildFailure {
		return &cmdtypes.ExitError{Err: err, Code: code}
	}

	w := cmd.ErrOrStderr()
	failures := pipeline.Failures(err)
	ops := make([]string, 0, len(failures))
	for op := range failures {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		for _, e := range failures[op] {
			if op != "" {
				fmt.Fprintf(w, "operation %s: ", op)
			}
			fmt.Fprintln(w, e)
			var ce *build.CompilationError
			if errors.As(e, &ce) {
				fmt.Fprintln(w, ce.Details())
			}
		}
	}
	return &cmdtypes.ExitError{Err: err, Code: code, Printed: true}
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/output"
)

// NewPlanCmd creates the plan command.
func NewPlanCmd(_ *cmdtypes.GlobalConfig) *cobra.Command {
	var formatFlag string

	c := &cobra.Command{
		Use:   "plan MANIFEST",
		Short: "Show how each operation will be built",
		Long: `Run the build front end without compiling.

For every operation the plan lists the middleware builders with the reason
each matched or not, the frames in emission order, pruned frames, container
inputs and whether the method suspends.

Examples:
  opc plan ops.cue
  opc plan ops.yaml -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return exitError(c, runPlan(c, args[0], formatFlag))
		},
	}
	c.Flags().StringVarP(&formatFlag, "output", "o", "text",
		"output format: "+strings.Join(output.ValidFormats(), ", "))
	return c
}

func runPlan(c *cobra.Command, path, formatFlag string) error {
	format, ok := output.ParseOutputFormat(formatFlag)
	if !ok {
		return &cmdtypes.ExitError{
			Err:  fmt.Errorf("unknown output format %q (valid: %s)", formatFlag, strings.Join(output.ValidFormats(), ", ")),
			Code: cmdtypes.ExitValidationError,
		}
	}

	s, err := loadStack(path, stackOptions{})
	if err != nil {
		return err
	}

	report, planErr := s.Build.Plan()
	if report != nil && len(report.Operations) > 0 {
		if err := output.WritePlan(report.Plans(), output.PlanOptions{Format: format, Writer: c.OutOrStdout()}); err != nil {
			return err
		}
	}
	return planErr
}

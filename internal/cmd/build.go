package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/output"
	"github.com/opmodel/opc/internal/pipeline"
)

// NewBuildCmd creates the build command.
func NewBuildCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	var emitFlag string

	c := &cobra.Command{
		Use:   "build MANIFEST",
		Short: "Compile a manifest and write the generated unit",
		Long: `Compile every operation of a manifest.

The generated unit is written to --emit, else build.emit from the config,
else <cacheDir>/units.

Examples:
  opc build ops.cue
  opc build ops.yaml --emit ./gen`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return exitError(c, runBuild(c, gc, args[0], emitFlag))
		},
	}
	c.Flags().StringVar(&emitFlag, "emit", "", "directory receiving the generated unit")
	return c
}

func runBuild(c *cobra.Command, gc *cmdtypes.GlobalConfig, path, emitFlag string) error {
	dir, err := emitDir(gc, emitFlag)
	if err != nil {
		return err
	}
	s, err := loadStack(path, stackOptions{EmitDir: dir})
	if err != nil {
		return err
	}

	var report *pipeline.Report
	err = output.RunWithSpinner(c.Context(), func() error {
		var err error
		_, report, err = s.compile(c.Context())
		return err
	}, output.WithTitle("Compiling "+path))
	if err != nil {
		return err
	}

	w := c.OutOrStdout()
	status := output.StatusCompiled
	if report.CacheHit {
		status = output.StatusCached
	}
	for _, op := range report.Operations {
		d := op.Descriptor
		fmt.Fprintln(w, output.FormatOperationLine(d.Verb, d.Route, d.Name, status))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, output.FormatCheckmark(fmt.Sprintf("%d operations compiled by %s", len(report.Operations), report.Backend)))
	fmt.Fprintln(w, output.StyleDim.Render("  digest: "+report.Digest))
	if report.Emitted != "" {
		fmt.Fprintln(w, output.StyleDim.Render("  unit:   "+report.Emitted))
	}
	return nil
}

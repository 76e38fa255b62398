package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/output"
	"github.com/opmodel/opc/internal/templates"
)

// NewInitCmd creates the init command.
func NewInitCmd(_ *cmdtypes.GlobalConfig) *cobra.Command {
	var (
		formatFlag string
		nameFlag   string
		forceFlag  bool
	)

	c := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Write a starter manifest",
		Long: `Write a starter manifest with a create and a get operation.

The resource name defaults to the directory name.

Formats:
  cue   CUE manifest, checked against the embedded schema (default)
  yaml  YAML manifest
  json  JSON manifest
  hcl   HCL manifest with env and string functions

Examples:
  opc init notes
  opc init --format hcl --name tickets`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return exitError(c, runInit(c, dir, formatFlag, nameFlag, forceFlag))
		},
	}

	c.Flags().StringVar(&formatFlag, "format", templates.DefaultTemplateName,
		"manifest format: "+strings.Join(templates.Names(), ", "))
	c.Flags().StringVar(&nameFlag, "name", "", "resource name (default: directory name)")
	c.Flags().BoolVarP(&forceFlag, "force", "f", false, "overwrite an existing manifest")
	return c
}

func runInit(c *cobra.Command, dir, format, name string, force bool) error {
	if _, err := templates.Get(format); err != nil {
		return oerrors.NewValidationError(err.Error(), "", "format", "")
	}

	res, err := templates.NewGenerator(templates.GenerateOptions{
		TargetDir:    dir,
		TemplateName: format,
		Name:         name,
		Force:        force,
	}).Generate()
	if err != nil {
		return err
	}

	w := c.OutOrStdout()
	for _, f := range res.Files {
		fmt.Fprintln(w, output.FormatCheckmark("Created "+filepath.Join(res.TargetDir, f)))
	}
	fmt.Fprintln(w, output.StyleDim.Render(fmt.Sprintf("  next: opc plan %s", filepath.Join(res.TargetDir, res.Files[0]))))
	return nil
}

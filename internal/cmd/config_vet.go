package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/config"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/output"
)

// NewConfigVetCmd creates the config vet command.
func NewConfigVetCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "vet",
		Short: "Validate configuration",
		Long: `Validate the opc configuration file.

Checks performed:
  1. Config file exists at the resolved path
  2. Config file matches the embedded schema
  3. Environment overrides parse

The config path is resolved using precedence:
  --config flag > OPC_CONFIG env > ~/.opc/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return exitError(c, runConfigVet(c, gc))
		},
	}
}

func runConfigVet(c *cobra.Command, gc *cmdtypes.GlobalConfig) error {
	pathValue, err := config.ResolveConfigPath(gc.ConfigFlag)
	if err != nil {
		return oerrors.Wrap(oerrors.ErrNotFound, "could not resolve config path")
	}
	path, err := config.ExpandPath(pathValue.Value)
	if err != nil {
		return err
	}
	output.Debug("validating config", "path", path, "source", pathValue.Source)

	exists, err := config.FileExists(path)
	if err != nil {
		return err
	}
	if !exists {
		return &oerrors.DetailError{
			Type:     "not found",
			Message:  "configuration file not found",
			Location: path,
			Hint:     "Run 'opc config init' to create a default configuration",
			Cause:    oerrors.ErrNotFound,
		}
	}
	w := c.OutOrStdout()
	fmt.Fprintln(w, output.FormatVetCheck("Config file found", path))

	v, err := config.NewValidator()
	if err != nil {
		return err
	}
	if err := v.ValidateFile(path); err != nil {
		return &oerrors.DetailError{
			Type:     "validation failed",
			Message:  err.Error(),
			Location: path,
			Cause:    oerrors.ErrValidation,
		}
	}
	fmt.Fprintln(w, output.FormatVetCheck("Schema valid", ""))

	resolved, err := config.ResolveAll(config.ResolveOptions{ConfigFlag: path})
	if err != nil {
		return err
	}
	for _, rv := range resolved.Values {
		if rv.Source == config.SourceEnv {
			fmt.Fprintln(w, output.FormatVetCheck("Override "+rv.Key, config.EnvName(rv.Key)))
		}
	}
	return nil
}

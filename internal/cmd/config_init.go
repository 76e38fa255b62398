package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/config"
)

// NewConfigInitCmd creates the config init command.
func NewConfigInitCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "init",
		Short: "Create a new configuration file",
		Long: `Create a new opc configuration file with default values.

The file is created at the resolved config path:
  --config flag > OPC_CONFIG env > ~/.opc/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return exitError(c, runConfigInit(c, gc, force))
		},
	}

	c.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing config file")
	return c
}

func runConfigInit(c *cobra.Command, gc *cmdtypes.GlobalConfig, force bool) error {
	pathValue, err := config.ResolveConfigPath(gc.ConfigFlag)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	path, err := config.ExpandPath(pathValue.Value)
	if err != nil {
		return fmt.Errorf("expanding config path: %w", err)
	}

	exists, err := config.FileExists(path)
	if err != nil {
		return fmt.Errorf("checking config file: %w", err)
	}
	if exists && !force {
		return &cmdtypes.ExitError{
			Err:  fmt.Errorf("config file already exists at %s (use --force to overwrite)", path),
			Code: cmdtypes.ExitGeneralError,
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(defaultFile())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	header := []byte("# opc configuration\n# Every key can be overridden with an OPC_* environment variable.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintln(c.OutOrStdout(), "Configuration initialized at "+path)
	fmt.Fprintln(c.OutOrStdout(), "Validate with: opc config vet")
	return nil
}

// defaultFile mirrors config.DefaultConfig with durations as strings.
func defaultFile() map[string]any {
	d := config.DefaultConfig()
	return map[string]any{
		"cacheDir": d.CacheDir,
		"log":      map[string]any{"timestamps": *d.Log.Timestamps},
		"build":    map[string]any{"workers": d.Build.Workers},
		"serve": map[string]any{
			"addr":            d.Serve.Addr,
			"shutdownTimeout": d.Serve.ShutdownTimeout.String(),
		},
	}
}

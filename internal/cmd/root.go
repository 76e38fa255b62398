// Package cmd provides the opc command tree.
package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/config"
	"github.com/opmodel/opc/internal/output"
	"github.com/opmodel/opc/internal/version"
)

// NewRootCmd creates the root command for opc. Its GlobalConfig is
// populated by PersistentPreRunE before any sub-command runs.
func NewRootCmd() *cobra.Command {
	gc := &cmdtypes.GlobalConfig{}
	var (
		cacheDirFlag   string
		timestampsFlag bool
	)

	rootCmd := &cobra.Command{
		Use:   "opc",
		Short: "Operation pipeline compiler",
		Long: `opc compiles operation pipelines into executors.

Operations are declared in manifests (.cue, .yaml, .json or .hcl). Each
operation is lowered through the middleware builders, ordered by data
dependencies, rendered into a generated unit and compiled once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags := map[string]string{}
			if cmd.Flags().Changed("cache-dir") {
				flags[config.KeyCacheDir] = cacheDirFlag
			}
			if cmd.Flags().Changed("timestamps") {
				flags[config.KeyLogTimestamps] = strconv.FormatBool(timestampsFlag)
			}
			return initializeGlobals(gc, flags)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&gc.ConfigFlag, "config", "c", "", "path to config file (env: OPC_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&gc.Verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&timestampsFlag, "timestamps", true, "show timestamps in log output")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "directory for emitted units (env: OPC_CACHE_DIR)")

	rootCmd.AddCommand(
		NewInitCmd(gc),
		NewBuildCmd(gc),
		NewPlanCmd(gc),
		NewRunCmd(gc),
		NewServeCmd(gc),
		NewConfigCmd(gc),
		NewVersionCmd(gc),
	)

	return rootCmd
}

// initializeGlobals resolves configuration and sets up logging.
func initializeGlobals(gc *cmdtypes.GlobalConfig, flags map[string]string) error {
	resolved, err := config.ResolveAll(config.ResolveOptions{
		ConfigFlag: gc.ConfigFlag,
		Flags:      flags,
	})
	if err != nil {
		output.SetupLogging(output.LogConfig{Verbose: gc.Verbose})
		return &cmdtypes.ExitError{Err: err, Code: cmdtypes.ExitValidationError}
	}
	gc.Resolved = resolved
	gc.Config = resolved.Config

	output.SetupLogging(output.LogConfig{
		Verbose:    gc.Verbose,
		Timestamps: gc.Config.Log.Timestamps,
	})

	info := version.Get()
	output.Debug("opc started", "version", info.Version, "cue_sdk", info.CUESDKVersion)
	output.Debug("config path resolved",
		"path", resolved.ConfigPath.Value,
		"source", resolved.ConfigPath.Source,
		"exists", resolved.File.Exists,
	)
	config.LogResolvedValues(resolved.Values)
	return nil
}

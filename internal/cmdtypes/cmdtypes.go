// Package cmdtypes provides shared types for the cmd package and its callers.
// It is separate from internal/cmd to avoid import cycles.
package cmdtypes

import (
	"github.com/opmodel/opc/internal/config"
	oerrors "github.com/opmodel/opc/internal/errors"
)

// GlobalConfig holds CLI-wide configuration resolved during PersistentPreRunE.
// It is populated once at startup and passed explicitly into every sub-command
// constructor.
type GlobalConfig struct {
	// Config is the effective configuration.
	Config *config.Config

	// Resolved records where each value came from.
	Resolved *config.Resolved

	// ConfigFlag is the raw --config flag value.
	ConfigFlag string

	Verbose bool
}

// Workers returns the configured batch worker count.
func (g *GlobalConfig) Workers() int {
	if g == nil || g.Config == nil || g.Config.Build.Workers < 1 {
		return config.DefaultWorkers
	}
	return g.Config.Build.Workers
}

// Exit codes, aliased from internal/errors.
const (
	ExitSuccess          = oerrors.ExitSuccess
	ExitGeneralError     = oerrors.ExitGeneralError
	ExitValidationError  = oerrors.ExitValidationError
	ExitNotFound         = oerrors.ExitNotFound
	ExitBuildFailure     = oerrors.ExitBuildFailure
	ExitOperationFailure = oerrors.ExitOperationFailure
	ExitCancelled        = oerrors.ExitCancelled
)

// ExitError is a type alias to internal/errors.ExitError.
type ExitError = oerrors.ExitError

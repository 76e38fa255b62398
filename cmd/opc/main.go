// Package main is the entry point for opc.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/opmodel/opc/internal/cmd"
	oerrors "github.com/opmodel/opc/internal/errors"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *oerrors.ExitError
		if errors.As(err, &exitErr) {
			// The command layer prints build failures itself.
			if !exitErr.Printed {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(oerrors.ExitGeneralError)
	}
}

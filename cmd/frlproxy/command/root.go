// Package command implements the proxy's CLI subcommands using cobra:
// serve, configure, forward, export, import, clear.
package command

import (
	"errors"

	"frlproxy/core/internal/pkg/apperror"

	"github.com/spf13/cobra"
)

// Exit codes for the CLI process.
const (
	ExitOK                  = 0
	ExitConfigError         = 1
	ExitRuntimeError        = 2
	ExitUpstreamUnreachable = 3
)

var configPath string

// NewRoot builds the top-level cobra command with all subcommands attached.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "frlproxy",
		Short: "Protocol-aware, caching, store-and-forward proxy for Adobe FRL/NUL traffic",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to the configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigureCmd())
	root.AddCommand(newForwardCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newClearCmd())

	return root
}

// ExitCodeFor maps an error returned from Execute to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperror.CodeConfigError:
			return ExitConfigError
		case apperror.CodeUpstreamUnreachable:
			return ExitUpstreamUnreachable
		}
	}
	return ExitRuntimeError
}

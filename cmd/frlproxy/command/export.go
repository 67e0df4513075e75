package command

import (
	"context"
	"fmt"
	"os"

	"frlproxy/core/internal/exportimport"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/store"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var responses bool
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export pending requests (or forwarded responses) as a journal blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return apperror.NewInternal(apperror.CodeConfigError, "failed to load configuration", err)
			}

			s, err := store.Open(cfg.Store.DBPath)
			if err != nil {
				return apperror.NewInternal(apperror.CodeStoreUnavailable, "failed to open store", err)
			}
			defer s.Close()

			ctx := context.Background()
			var blob []byte
			if responses {
				blob, err = exportimport.ExportResponses(ctx, s)
			} else {
				blob, err = exportimport.ExportPending(ctx, s)
			}
			if err != nil {
				return apperror.NewInternal(apperror.CodeInternal, "failed to build export blob", err)
			}

			if err := os.WriteFile(args[0], blob, 0o644); err != nil {
				return apperror.NewInternal(apperror.CodeInternal, "failed to write export file", err)
			}

			fmt.Printf("exported to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&responses, "responses", false, "export forwarded responses instead of pending requests")
	return cmd
}

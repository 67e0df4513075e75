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

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a journal blob produced by export, idempotently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return apperror.NewInternal(apperror.CodeConfigError, "failed to load configuration", err)
			}

			blob, err := os.ReadFile(args[0])
			if err != nil {
				return apperror.NewInternal(apperror.CodeInternal, "failed to read import file", err)
			}

			s, err := store.Open(cfg.Store.DBPath)
			if err != nil {
				return apperror.NewInternal(apperror.CodeStoreUnavailable, "failed to open store", err)
			}
			defer s.Close()

			n, err := exportimport.Import(context.Background(), s, blob)
			if err != nil {
				return apperror.NewInternal(apperror.CodeInternal, "failed to import blob", err)
			}

			fmt.Printf("imported %d record(s) from %s\n", n, args[0])
			return nil
		},
	}
}

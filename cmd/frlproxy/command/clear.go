package command

import (
	"context"
	"fmt"
	"time"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/store"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var clearRequests, clearResponses, clearAll bool
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear journaled requests, responses, or the entire durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearRequests && !clearResponses && !clearAll {
				return apperror.NewClient(apperror.CodeValidation, "one of --requests, --responses, or --all is required", nil)
			}
			if olderThan > 0 && clearAll {
				return apperror.NewClient(apperror.CodeValidation, "--older-than cannot be combined with --all", nil)
			}

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

			if clearAll {
				if err := s.ClearAll(ctx); err != nil {
					return apperror.NewInternal(apperror.CodeInternal, "failed to clear store", err)
				}
				fmt.Println("cleared all requests and responses")
				return nil
			}

			if clearRequests {
				if err := s.ClearRequests(ctx, olderThan); err != nil {
					return apperror.NewInternal(apperror.CodeInternal, "failed to clear requests", err)
				}
				if olderThan > 0 {
					fmt.Printf("cleared requests older than %s\n", olderThan)
				} else {
					fmt.Println("cleared requests")
				}
			}
			if clearResponses {
				if err := s.ClearResponses(ctx); err != nil {
					return apperror.NewInternal(apperror.CodeInternal, "failed to clear responses", err)
				}
				fmt.Println("cleared responses")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearRequests, "requests", false, "clear journaled requests")
	cmd.Flags().BoolVar(&clearResponses, "responses", false, "clear journaled responses")
	cmd.Flags().BoolVar(&clearAll, "all", false, "clear requests and responses")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "with --requests, only clear rows older than this duration (e.g. 720h)")
	return cmd
}

package command

import (
	"context"
	"fmt"
	"time"

	"frlproxy/core/internal/app"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/pkg/apperror"

	"github.com/spf13/cobra"
)

func newForwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward",
		Short: "Run one drain cycle against the configured upstreams and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return apperror.NewInternal(apperror.CodeConfigError, "failed to load configuration", err)
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Shutdown(ctx)
			}()

			ctx := context.Background()
			licenseResult := a.LicenseWorker().Drain(ctx)
			logResult := a.LogWorker().Drain(ctx)

			fmt.Printf("license: forwarded=%d failed=%d remaining=%d\n", licenseResult.Forwarded, licenseResult.Failed, licenseResult.Remaining)
			fmt.Printf("log: forwarded=%d failed=%d remaining=%d\n", logResult.Forwarded, logResult.Failed, logResult.Remaining)

			if licenseResult.Remaining > 0 && licenseResult.Forwarded == 0 && licenseResult.Failed > 0 {
				return apperror.NewTransient(apperror.CodeUpstreamUnreachable, "license upstream unreachable during drain", nil)
			}
			return nil
		},
	}
}

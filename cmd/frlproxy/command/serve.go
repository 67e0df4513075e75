package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frlproxy/core/internal/app"
	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/pkg/apperror"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy with the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return apperror.NewInternal(apperror.CodeConfigError, "failed to load configuration", err)
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

			errCh := make(chan error, 1)
			go func() {
				if err := a.Run(); err != nil {
					errCh <- err
				}
			}()

			select {
			case <-quit:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := a.Shutdown(ctx); err != nil {
					fmt.Fprintln(os.Stderr, "error during shutdown:", err)
				}
				return nil
			case err := <-errCh:
				return apperror.NewInternal(apperror.CodeInternal, "server stopped unexpectedly", err)
			}
		},
	}
}

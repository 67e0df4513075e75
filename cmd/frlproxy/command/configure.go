package command

import (
	"fmt"
	"os"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/pkg/apperror"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigureCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write or repair the configuration file idempotently",
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, err := config.Load(configPath)
			if err != nil {
				if !repair {
					return apperror.NewInternal(apperror.CodeConfigError, "failed to read existing configuration", err)
				}
				defaults := config.Defaults()
				existing = &defaults
			}

			out, err := yaml.Marshal(existing)
			if err != nil {
				return apperror.NewInternal(apperror.CodeConfigError, "failed to marshal configuration", err)
			}

			if err := os.WriteFile(configPath, out, 0o644); err != nil {
				return apperror.NewInternal(apperror.CodeConfigError, "failed to write configuration file", err)
			}

			fmt.Printf("configuration written to %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "write defaults over a missing or unreadable configuration file")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/resonance/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect resonance configuration",
		Long: `Inspect the effective configuration.

Configuration is read from ./resonance.yaml or ~/.resonance/config.yaml (or
--config), then RESONANCE_* environment variables, then command flags.

Examples:
  resonance config show
  resonance config show --json`,
	}

	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			redacted := redactConfig(cfg)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), redacted)
			}
			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// redactConfig returns a copy safe to print.
func redactConfig(cfg *config.Config) config.Config {
	redacted := *cfg
	redacted.LLM.APIKey = cfg.LLM.RedactedAPIKey()
	redacted.Store.MongoURI = cfg.Store.RedactedMongoURI()
	return redacted
}

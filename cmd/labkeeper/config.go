package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/labkeeper/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load the given config files and LABKEEPER_* environment overrides,
apply defaults and print the resulting configuration as YAML.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false,
		"print passwords instead of redacting them")

	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !showSecrets {
		redactSecrets(cfg)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)

	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return enc.Close()
}

func redactSecrets(cfg *config.Config) {
	if cfg.Database.Postgres.Password != "" {
		cfg.Database.Postgres.Password = redacted
	}

	for i := range cfg.API.Auth.Users {
		if cfg.API.Auth.Users[i].Password != "" {
			cfg.API.Auth.Users[i].Password = redacted
		}
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m1kah/livegrid/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a livegrid configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  livegrid validate -c livegrid.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	relay := "disabled"
	if cfg.Relay.RedisAddr != "" {
		relay = cfg.Relay.RedisAddr
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:             %d\n", cfg.Port)
	fmt.Printf("  Refresh interval: %s\n", cfg.Refresh.Interval.Duration())
	fmt.Printf("  Initial delay:    %s\n", cfg.Refresh.InitialDelay.Duration())
	fmt.Printf("  Records:          %d seeded, %d samples\n", len(cfg.Records), len(cfg.Samples))
	fmt.Printf("  Relay:            %s\n", relay)

	return nil
}

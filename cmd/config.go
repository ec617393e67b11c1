package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nomicfoundation/sitedata/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect sitedata configuration",
	Long: `Inspect the resolved sitedata configuration.

Examples:
  sitedata config show                 # Show the effective configuration
  sitedata config show --format json   # Show it as JSON
  sitedata config validate             # Validate the current configuration
  sitedata config validate --strict    # Treat warnings as errors`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration for correctness.

This command checks for:
- Known environment, log level and cache backend
- Positive concurrency, timeouts and cache TTLs
- Relative paths that stay inside the project
- Plugin, redirect and error descriptor files that exist
- Upstream credentials missing for a production build`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying defaults, the config file and
SITEDATA_ environment variables. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var (
	configStrict     bool
	configShowFormat string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configShowCmd)

	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
	configShowCmd.Flags().Var(newEnumValue(&configShowFormat, "yaml", "yaml", "json"), "format", "output format (yaml, json)")
}

// decodeConfig unmarshals the configuration without validating it.
func decodeConfig() (*config.Config, error) {
	config.SetDefaults()
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := decodeConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := config.ValidateConfigWithDetails(cfg)
	if result.HasErrors() || result.HasWarnings() {
		printf(out, "%s", result.String())
	}

	if result.HasErrors() {
		printError(out, "Configuration has %d errors\n", len(result.Errors))
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}
	if result.HasWarnings() {
		if configStrict {
			printError(out, "Configuration has %d warnings\n", len(result.Warnings))
			return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(result.Warnings))
		}
		printWarning(out, "Found %d warnings. Use --strict to treat warnings as errors.\n", len(result.Warnings))
		return nil
	}

	printSuccess(out, "Configuration is valid\n")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := decodeConfig()
	if err != nil {
		return err
	}
	redactSecrets(cfg)

	out := cmd.OutOrStdout()
	if configShowFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

const redacted = "<redacted>"

func redactSecrets(cfg *config.Config) {
	if cfg.Blog.APIKey != "" {
		cfg.Blog.APIKey = redacted
	}
	if cfg.GitHub.Token != "" {
		cfg.GitHub.Token = redacted
	}
	if cfg.Cache.RedisURL != "" {
		cfg.Cache.RedisURL = redactURL(cfg.Cache.RedisURL)
	}
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}

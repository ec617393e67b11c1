// Package cmd provides the sitedata command-line interface.
//
// Configuration is resolved from, highest priority first:
//  1. command-line flags (--config, --log-level and per-command flags)
//  2. SITEDATA_<SECTION>_<OPTION> environment variables, e.g.
//     SITEDATA_BLOG_API_KEY or SITEDATA_CACHE_BACKEND
//  3. the configuration file: --config, SITEDATA_CONFIG_FILE, or
//     .sitedata.yml in the working directory
//  4. built-in defaults
package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitedata",
	Short: "Build-time data pipeline for the documentation site",
	Long: `sitedata produces the data the documentation site is built from:

  • the aggregated redirect table, checked for colliding sources
  • community plugins ranked by npm downloads
  • official plugins with their README from the npm registry
  • recent GitHub releases and blog posts
  • the error-code reference and its /hhe<n> shortlinks

Quick Start:
  sitedata build                  Write redirects and every collection
  sitedata redirects check        Check the redirect lists for collisions
  sitedata watch                  Rebuild redirects while editing them
  sitedata cache list             Show cached README and download entries`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sitedata.yml, can also use SITEDATA_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the configuration file and the SITEDATA_
// environment. A missing file is not an error: defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEDATA_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitedata")
	}

	viper.SetEnvPrefix("SITEDATA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		printInfo(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and the logger writing to stderr.
func loadConfig(stderr io.Writer) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = version.UserAgent("sitedata")
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: stderr,
	})
	return cfg, logger, nil
}

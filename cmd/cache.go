package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomicfoundation/sitedata/internal/services"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the README and download-count cache",
	Long: `The build caches official plugin READMEs and community plugin download
counts in the configured backend (file, leveldb, redis or memory).

Examples:
  sitedata cache list
  sitedata cache clear`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached keys per store",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached entry",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
}

func openCaches(cmd *cobra.Command) (*services.Caches, error) {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return services.OpenCaches(cfg.Cache, logger)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	caches, err := openCaches(cmd)
	if err != nil {
		return err
	}
	defer caches.Close()

	out := cmd.OutOrStdout()
	for _, name := range caches.Names() {
		m, _ := caches.Maintainer(name)
		keys, err := m.Keys()
		if err != nil {
			return fmt.Errorf("listing %s: %w", name, err)
		}
		printInfo(out, "%s (%d)\n", name, len(keys))
		for _, k := range keys {
			printDetail(out, "%s\n", k)
		}
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	caches, err := openCaches(cmd)
	if err != nil {
		return err
	}
	defer caches.Close()

	for _, name := range caches.Names() {
		m, _ := caches.Maintainer(name)
		if err := m.Clear(); err != nil {
			return fmt.Errorf("clearing %s: %w", name, err)
		}
		printSuccess(cmd.OutOrStdout(), "Cleared %s\n", name)
	}
	return nil
}

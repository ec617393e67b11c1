package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cobra"

	"github.com/nomicfoundation/sitedata/internal/content"
	"github.com/nomicfoundation/sitedata/internal/services"
)

var npmCmd = &cobra.Command{
	Use:   "npm",
	Short: "Query the npm registry the way the build does",
	Long: `Fetch a package README or download count with the build's registry
settings, bypassing the cache.

Examples:
  sitedata npm readme @nomicfoundation/hardhat-viem
  sitedata npm readme @nomicfoundation/hardhat-viem --tag next --strip-heading
  sitedata npm downloads hardhat-gas-reporter hardhat-deploy -o json`,
}

var npmReadmeCmd = &cobra.Command{
	Use:   "readme <package>",
	Short: "Print the README of a package at a dist-tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runNpmReadme,
}

var npmDownloadsCmd = &cobra.Command{
	Use:   "downloads <package>...",
	Short: "Print last-month download counts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNpmDownloads,
}

var (
	npmTag          string
	npmStripHeading bool
	npmOutput       string
)

func init() {
	rootCmd.AddCommand(npmCmd)
	npmCmd.AddCommand(npmReadmeCmd, npmDownloadsCmd)

	npmReadmeCmd.Flags().StringVar(&npmTag, "tag", "", "dist-tag or version (default from registry.tag)")
	npmReadmeCmd.Flags().BoolVar(&npmStripHeading, "strip-heading", false, "Remove the first heading, as the site does")
	addOutputFlag(npmDownloadsCmd.Flags(), &npmOutput)
}

func runNpmReadme(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	tag := npmTag
	if tag == "" {
		tag = cfg.Registry.Tag
	}

	client := services.NewNpmClient(services.NewHTTPClient(cfg.HTTP), cfg.Registry)
	readme, err := client.Readme(cmd.Context(), args[0], tag)
	if err != nil {
		return err
	}
	if npmStripHeading {
		readme = content.StripFirstHeading(readme)
	}
	printf(cmd.OutOrStdout(), "%s\n", strings.TrimRight(readme, "\n"))
	return nil
}

type downloadCount struct {
	Package   string `json:"package"`
	Downloads int64  `json:"downloads"`
}

func runNpmDownloads(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	client := services.NewNpmClient(services.NewHTTPClient(cfg.HTTP), cfg.Registry)

	mapper := iter.Mapper[string, downloadCount]{MaxGoroutines: cfg.Build.Concurrency}
	counts, err := mapper.MapErr(args, func(pkg *string) (downloadCount, error) {
		n, err := client.LastMonthDownloads(cmd.Context(), *pkg)
		return downloadCount{Package: *pkg, Downloads: n}, err
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if npmOutput == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	for _, c := range counts {
		printf(out, "%-40s %d\n", c.Package, c.Downloads)
	}
	return nil
}

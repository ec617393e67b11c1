package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/redirects"
	"github.com/nomicfoundation/sitedata/internal/services"
)

var redirectsCmd = &cobra.Command{
	Use:   "redirects",
	Short: "Inspect the site's redirect table",
	Long: `Aggregate the built-in redirect lists, the generated error-code shortlinks
and any configured extra files without running a full build.

Examples:
  sitedata redirects check               # Fail on colliding sources
  sitedata redirects print --format map  # Print the table
  sitedata redirects lookup /discord     # Show where a source points`,
}

var redirectsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the redirect lists for collisions and invalid entries",
	Args:  cobra.NoArgs,
	RunE:  runRedirectsCheck,
}

var redirectsPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the aggregated redirect table",
	Args:  cobra.NoArgs,
	RunE:  runRedirectsPrint,
}

var redirectsLookupCmd = &cobra.Command{
	Use:   "lookup <source>...",
	Short: "Show the destination and list of redirect sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRedirectsLookup,
}

var redirectsFormat redirects.Format

func init() {
	rootCmd.AddCommand(redirectsCmd)
	redirectsCmd.AddCommand(redirectsCheckCmd, redirectsPrintCmd, redirectsLookupCmd)

	addFormatFlag(redirectsPrintCmd.Flags(), &redirectsFormat)
}

func aggregateRedirects(cmd *cobra.Command) (*redirects.Table, *config.Config, error) {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	descriptors, err := services.LoadErrorDescriptors(cfg)
	if err != nil {
		return nil, nil, err
	}
	table, err := services.NewBuildService(cfg, logger).Redirects(descriptors)
	return table, cfg, err
}

func runRedirectsCheck(cmd *cobra.Command, args []string) error {
	table, _, err := aggregateRedirects(cmd)
	if err != nil {
		var collision *redirects.CollisionError
		if errors.As(err, &collision) {
			printError(cmd.ErrOrStderr(), "Duplicate redirect source %s\n", collision.Source)
			printDetail(cmd.ErrOrStderr(), "%s -> %s (%s)\n", collision.Source, collision.FirstDestination, collision.FirstList)
			printDetail(cmd.ErrOrStderr(), "%s -> %s (%s)\n", collision.Source, collision.ConflictDestination, collision.ConflictList)
		}
		return err
	}
	printSuccess(cmd.OutOrStdout(), "%d redirects, no collisions\n", table.Len())
	return nil
}

func runRedirectsPrint(cmd *cobra.Command, args []string) error {
	table, cfg, err := aggregateRedirects(cmd)
	if err != nil {
		return err
	}
	format := redirectsFormat
	if format == "" {
		if format, err = redirects.ParseFormat(cfg.Redirects.Format); err != nil {
			return err
		}
	}
	return table.Encode(cmd.OutOrStdout(), format)
}

func runRedirectsLookup(cmd *cobra.Command, args []string) error {
	table, _, err := aggregateRedirects(cmd)
	if err != nil {
		return err
	}

	missing := 0
	for _, source := range args {
		target, ok := table.Lookup(source)
		if !ok {
			printWarning(cmd.OutOrStdout(), "%s: no redirect\n", source)
			missing++
			continue
		}
		list, _ := table.Origin(source)
		printf(cmd.OutOrStdout(), "%s -> %s (%d, %s)\n", source, target.Destination, target.Status, list)
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d sources have no redirect", missing, len(args))
	}
	return nil
}

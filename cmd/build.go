package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/redirects"
	"github.com/nomicfoundation/sitedata/internal/services"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Write the redirect table and every content collection",
	Long: `Build the site data: aggregate the redirect lists, then fetch the content
collections concurrently and write them as JSON under the output directory.

A failing loader does not stop the others, but fails the build.

Examples:
  sitedata build                         # Build into build.output_dir
  sitedata build --output dist/data      # Build to a specific directory
  sitedata build --redirects-only        # Only write the redirect table
  sitedata build --clean --format yaml   # Remove old output, write YAML redirects`,
	RunE: runBuild,
}

var (
	buildOutput        string
	buildClean         bool
	buildRedirectsOnly bool
	buildFormat        redirects.Format
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output directory (default from build.output_dir)")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove previous build output first")
	buildCmd.Flags().BoolVar(&buildRedirectsOnly, "redirects-only", false, "Only aggregate and write redirects")
	addFormatFlag(buildCmd.Flags(), &buildFormat)
}

func runBuild(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if buildFormat != "" {
		cfg.Redirects.Format = string(buildFormat)
	}

	printInfo(out, "Building site data (%s)...\n", cfg.Environment)

	svc := services.NewBuildService(cfg, logger)
	result, err := svc.Build(cmd.Context(), services.BuildOptions{
		OutputDir:     buildOutput,
		RedirectsOnly: buildRedirectsOnly,
		Clean:         buildClean,
	})
	if result != nil {
		printBuildResult(cmd, result)
	}
	if err != nil {
		siteerrors.NewErrorHandler(logger).Handle(cmd.Context(), err)
		printError(cmd.ErrOrStderr(), "Build failed\n")
		return err
	}

	printSuccess(out, "Build %s completed in %v\n", result.ID, result.Duration.Round(time.Millisecond))
	return nil
}

func printBuildResult(cmd *cobra.Command, result *services.BuildResult) {
	out := cmd.OutOrStdout()
	printDetail(out, "%d redirects\n", result.Redirects)

	names := make([]string, 0, len(result.Collections))
	for name := range result.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printDetail(out, "%s: %d items\n", name, result.Collections[name])
	}

	for _, e := range result.Errors {
		printError(cmd.ErrOrStderr(), "%s: %v\n", e.Component, e.Cause)
	}
}

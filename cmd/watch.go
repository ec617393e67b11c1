package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/services"
	"github.com/nomicfoundation/sitedata/internal/validation"
	"github.com/nomicfoundation/sitedata/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild redirects when data files change",
	Long: `Watch build.watch, the extra redirect files and the configuration file,
and rewrite the redirect table after every change. A collision is reported
without stopping the watcher.

Examples:
  sitedata watch                                # Watch the configured paths
  sitedata watch --verbose                      # List every changed file
  sitedata watch --command "npm run build:docs" # Run a hook after each rebuild`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchVerbose  bool
	watchCommand  string
	watchDebounce time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Verbose output")
	watchCmd.Flags().StringVarP(&watchCommand, "command", "c", "", "Command to run after each successful rebuild")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "Delay grouping rapid changes")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var hook []string
	if watchCommand != "" {
		name, hookArgs, err := validation.ParseHookCommand(watchCommand)
		if err != nil {
			return fmt.Errorf("invalid --command: %w", err)
		}
		hook = append([]string{name}, hookArgs...)
	}

	fileWatcher, err := watcher.NewFileWatcher(watchDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.IgnoreFilter(cfg.Build.Ignore...))
	fileWatcher.AddFilter(watcher.DataFileFilter)
	fileWatcher.AddFilter(watcher.NoEditorTempFilter)

	out := cmd.OutOrStdout()
	printInfo(out, "Setting up file watching...\n")
	for _, path := range watchPaths(cfg) {
		if err := fileWatcher.Add(path); err != nil {
			printWarning(out, "failed to watch %s: %v\n", path, err)
			continue
		}
		printDetail(out, "Watching: %s\n", path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rebuild := func(ctx context.Context) {
		if err := rebuildRedirects(ctx, cmd, logger); err != nil {
			printError(out, "Rebuild failed: %v\n", err)
			return
		}
		if hook != nil {
			if err := runHook(ctx, cmd, hook); err != nil {
				printError(out, "Hook failed: %v\n", err)
			}
		}
	}

	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		if watchVerbose {
			printInfo(out, "File changes detected:\n")
			for _, event := range events {
				printDetail(out, "%s: %s\n", event.Type, event.Path)
			}
		} else {
			printInfo(out, "%d file(s) changed\n", len(events))
		}
		rebuild(ctx)
		return nil
	})

	rebuild(ctx)

	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	printInfo(out, "Watching for changes... (Press Ctrl+C to stop)\n")

	<-ctx.Done()
	printInfo(out, "\nStopping file watcher...\n")
	return nil
}

// watchPaths returns the configured watch roots, the extra redirect files
// and the configuration file in use.
func watchPaths(cfg *config.Config) []string {
	paths := append([]string{}, cfg.Build.Watch...)
	paths = append(paths, cfg.Redirects.ExtraFiles...)
	if used := viper.ConfigFileUsed(); used != "" {
		paths = append(paths, used)
	}
	return paths
}

// rebuildRedirects reloads the configuration, so edits to it apply, and
// rewrites the redirect table.
func rebuildRedirects(ctx context.Context, cmd *cobra.Command, logger logging.Logger) error {
	if used := viper.ConfigFileUsed(); used != "" {
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to reload %s: %w", used, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	result, err := services.NewBuildService(cfg, logger).Build(ctx, services.BuildOptions{RedirectsOnly: true})
	if err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), "Wrote %d redirects in %s\n", result.Redirects, result.Duration.Round(time.Millisecond))
	return nil
}

func runHook(ctx context.Context, cmd *cobra.Command, hook []string) error {
	printInfo(cmd.OutOrStdout(), "Running: %v\n", hook)
	c := exec.CommandContext(ctx, hook[0], hook[1:]...)
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	c.Env = os.Environ()
	return c.Run()
}

package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/nomicfoundation/sitedata/internal/version"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for sitedata.

Examples:
  sitedata version              # Show version and commit
  sitedata version --detailed   # Show build time, Go version and platform
  sitedata version -o json      # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	addOutputFlag(versionCmd.Flags(), &versionFormat)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch {
	case versionFormat == "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case versionShort:
		printf(out, "%s\n", info.Short())
	case versionDetailed:
		printf(out, "%s\n", info.Detailed())
	default:
		printf(out, "sitedata %s\n", info.Short())
	}
	return nil
}

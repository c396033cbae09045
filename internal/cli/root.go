// Package cli implements the tripmerge command line.
package cli

import (
	"github.com/spf13/cobra"
)

const rootLong = `tripmerge moves monthly NYC trip-record files into a warehouse and merges
them into deduplicated master relations.

Each batch file is copied into the object store, loaded into its own staging
relation, tagged with a stable per-row identity and merged insert-only into the
master relation of its source type. Re-running a batch never adds duplicates.

Configuration precedence: flags > TRIPMERGE_* environment > tripmerge.yaml > defaults.
A .env file in the working directory is loaded first.

Exit Codes:
  0  - Success (individual batches may have failed; see the summary)
  1  - General error
  2  - CLI usage error (missing arguments or invalid flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Warehouse or object store connection failed
  15 - No valid input files found`

// NewRootCommand builds the tripmerge command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tripmerge",
		Short:         "Incremental load-and-merge of NYC trip-record batches",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	root.PersistentFlags().String("log-format", "", "Log encoding: console|json (default console, or $TRIPMERGE_LOG_FORMAT)")
	root.PersistentFlags().String("config", "", "Path to a config file (default ./tripmerge.yaml when present)")

	root.AddCommand(
		newVersionCommand(),
		newDownloadCommand(),
		newLoadCommand(),
		newReportCommand(),
		newZonesCommand(),
	)
	return root
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

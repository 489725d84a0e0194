package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crumbworks/querycache/cmd/querycache/commands"
	"github.com/crumbworks/querycache/pkg/observability/logging"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if _, err := logging.InitLoggerFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "querycache",
		Short: "Semantic query response cache CLI",
		Long: `querycache manages a semantic query response cache: repeated and reworded
questions are answered from stored responses instead of re-running the
answer-generation pipeline.

Common workflows:
  querycache warm                    # Pre-seed the cache from a seed file
  querycache lookup "do you deliver" # Resolve a question against the cache
  querycache stats --top 10          # Inspect hit ratios and savings
  querycache cleanup                 # Evict expired and stale entries

For detailed help on any command, use:
  querycache <command> --help`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(commands.NewLookupCmd())
	rootCmd.AddCommand(commands.NewStatsCmd())
	rootCmd.AddCommand(commands.NewWarmCmd())
	rootCmd.AddCommand(commands.NewPinCmd())
	rootCmd.AddCommand(commands.NewCleanupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

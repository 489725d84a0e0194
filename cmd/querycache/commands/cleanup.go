package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crumbworks/querycache/pkg/cache"
)

// NewCleanupCmd creates the cleanup command
func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Evict expired and stale cache entries",
		Long: `Run a bulk eviction sweep: hard-expired entries are always removed, then
entries that are both older than --max-age-days and used fewer than
--min-usage times. Pinned entries are exempt from the age/usage predicate
unless --keep-pinned=false.

Examples:
  # Default sweep (age > 30 days AND usage < 2, pins kept)
  querycache cleanup

  # Aggressive sweep including pinned entries
  querycache cleanup --min-usage 5 --max-age-days 7 --keep-pinned=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, shutdown, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			minUsage, _ := cmd.Flags().GetInt64("min-usage")
			maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")
			keepPinned, _ := cmd.Flags().GetBool("keep-pinned")

			removed, err := engine.Cleanup(cmd.Context(), cache.CleanupPolicy{
				MinUsageThreshold: minUsage,
				MaxAgeDays:        maxAgeDays,
				KeepPinned:        keepPinned,
			})
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			fmt.Printf("Removed %d cache entries\n", removed)
			return nil
		},
	}

	cmd.Flags().Int64("min-usage", 2, "Entries used fewer times than this are eviction candidates")
	cmd.Flags().Int("max-age-days", 30, "Entries older than this are eviction candidates")
	cmd.Flags().Bool("keep-pinned", true, "Exempt pinned entries from the age/usage predicate")

	return cmd
}

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics and estimated savings",
		Long: `Display cache aggregates: entry counts, usage totals, hit ratio and the
estimated API calls and tokens the cache has absorbed.

Examples:
  # Human-readable report
  querycache stats

  # Machine-readable output
  querycache stats --output json

  # Include the most reused entries
  querycache stats --top 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, shutdown, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			ctx := cmd.Context()
			stats, err := engine.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to collect stats: %w", err)
			}

			output, _ := cmd.Flags().GetString("output")
			topN, _ := cmd.Flags().GetInt("top")

			if output == "json" {
				report := map[string]interface{}{"stats": stats}
				if topN > 0 {
					top, err := engine.TopEntries(ctx, topN)
					if err != nil {
						return fmt.Errorf("failed to fetch top entries: %w", err)
					}
					report["top_entries"] = top
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Total entries:\t%d\n", stats.TotalEntries)
			fmt.Fprintf(w, "Total usage:\t%d\n", stats.TotalUsage)
			fmt.Fprintf(w, "Average usage:\t%.2f\n", stats.AvgUsage)
			fmt.Fprintf(w, "Hits / misses:\t%d / %d\n", stats.HitCount, stats.MissCount)
			fmt.Fprintf(w, "Hit ratio:\t%.1f%%\n", stats.HitRatio*100)
			fmt.Fprintf(w, "API calls saved:\t%d\n", stats.APICallsSaved)
			fmt.Fprintf(w, "Tokens saved (est.):\t%d\n", stats.TokensSaved)
			if stats.LastCleanupTime != nil {
				fmt.Fprintf(w, "Last cleanup:\t%s\n", stats.LastCleanupTime.Format("2006-01-02 15:04:05"))
			}
			w.Flush()

			if topN > 0 {
				top, err := engine.TopEntries(ctx, topN)
				if err != nil {
					return fmt.Errorf("failed to fetch top entries: %w", err)
				}
				fmt.Println("\nMost reused entries:")
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USAGE\tINTENT\tPINNED\tQUESTION")
				for _, e := range top {
					fmt.Fprintf(tw, "%d\t%s\t%v\t%s\n", e.UsageCount, e.Intent, e.IsPinned, e.Question)
				}
				tw.Flush()
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "table", "Output format: table, json")
	cmd.Flags().Int("top", 0, "Include the N most reused entries")

	return cmd
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/crumbworks/querycache/pkg/cache"
	"github.com/crumbworks/querycache/pkg/config"
)

// NewWarmCmd creates the warm command
func NewWarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-seed the cache with curated question/answer pairs",
		Long: `Insert curated seed entries before live traffic arrives. Seeds are stored
pinned so routine cleanup never evicts them, and seeds whose question is
already cached are skipped.

The seed file is a YAML list:

  - question: "Do you deliver?"
    answer: "Yes, we deliver within 5 miles."
  - question: "What are your hours?"
    answer: "We are open 7am to 6pm, Tuesday through Sunday."

Examples:
  # Use the seed file from the config
  querycache warm

  # Use an explicit seed file
  querycache warm --seeds config/seeds.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, shutdown, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			seedPath, _ := cmd.Flags().GetString("seeds")
			if seedPath == "" {
				if cfg := config.Get(); cfg != nil {
					seedPath = cfg.Warm.SeedFile
				}
			}
			if seedPath == "" {
				return fmt.Errorf("no seed file: pass --seeds or set warm.seed_file in the config")
			}

			data, err := os.ReadFile(seedPath)
			if err != nil {
				return fmt.Errorf("failed to read seed file: %w", err)
			}
			var seeds []cache.SeedEntry
			if err := yaml.Unmarshal(data, &seeds); err != nil {
				return fmt.Errorf("failed to parse seed file: %w", err)
			}
			if len(seeds) == 0 {
				return fmt.Errorf("seed file %s contains no entries", seedPath)
			}

			inserted, err := engine.Warm(cmd.Context(), seeds)
			if err != nil {
				return fmt.Errorf("warm failed after %d inserts: %w", inserted, err)
			}

			fmt.Printf("Warmed cache with %d of %d seed entries (%d already cached)\n",
				inserted, len(seeds), len(seeds)-inserted)
			return nil
		},
	}

	cmd.Flags().String("seeds", "", "Path to the YAML seed file (defaults to warm.seed_file)")

	return cmd
}

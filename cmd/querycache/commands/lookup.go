package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewLookupCmd creates the lookup command
func NewLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <question>",
		Short: "Resolve a question against the cache",
		Long: `Run the two-stage lookup (fingerprint probe, then vector probe) for a
question and print the result. Useful for smoke-testing a deployment and for
checking what a given phrasing resolves to.

Examples:
  querycache lookup "Do you deliver?"
  querycache lookup --output json "what are your hours"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, shutdown, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			question := strings.Join(args, " ")
			match, err := engine.Lookup(cmd.Context(), question)
			if err != nil {
				return fmt.Errorf("lookup failed: %w", err)
			}

			output, _ := cmd.Flags().GetString("output")
			if output == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if match == nil {
					return enc.Encode(map[string]interface{}{"hit": false})
				}
				return enc.Encode(map[string]interface{}{
					"hit":        true,
					"match_kind": match.Kind,
					"similarity": match.Similarity,
					"entry":      match.Entry,
				})
			}

			if match == nil {
				fmt.Println("Cache miss")
				return nil
			}
			fmt.Printf("Cache hit (%s, similarity %.4f)\n", match.Kind, match.Similarity)
			fmt.Printf("Question: %s\n", match.Entry.Question)
			fmt.Printf("Answer:   %s\n", match.Entry.Answer)
			fmt.Printf("Intent:   %s, used %d times\n", match.Entry.Intent, match.Entry.UsageCount)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "table", "Output format: table, json")

	return cmd
}

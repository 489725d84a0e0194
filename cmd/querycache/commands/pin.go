package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewPinCmd creates the pin command
func NewPinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin <question>",
		Short: "Pin a cached question so cleanup keeps it",
		Long: `Mark the cache entry for a question as pinned. Pinned entries are exempt
from the age/usage cleanup predicate; hard expiry still applies.

The question is matched by its normalized fingerprint, so punctuation and
casing differences do not matter.

Examples:
  querycache pin "Do you deliver?"
  querycache pin --hash 4a1f9c...`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, shutdown, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			hash, _ := cmd.Flags().GetString("hash")
			if hash == "" {
				if len(args) == 0 {
					return fmt.Errorf("pass a question or --hash")
				}
				question := strings.Join(args, " ")
				if err := engine.PinQuestion(cmd.Context(), question); err != nil {
					return fmt.Errorf("failed to pin %q: %w", question, err)
				}
				fmt.Printf("Pinned %q\n", question)
				return nil
			}

			if err := engine.Pin(cmd.Context(), hash); err != nil {
				return fmt.Errorf("failed to pin hash %s: %w", hash, err)
			}
			fmt.Printf("Pinned entry %s\n", hash)
			return nil
		},
	}

	cmd.Flags().String("hash", "", "Pin by fingerprint instead of question text")

	return cmd
}

package commands

import (
	"fmt"

	"zarrvault/pkg/container"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [document]",
	Short: "Check the checksum of every block in a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = ZV.Workers
		}
		n, err := container.Verify(cmd.Context(), args[0], workers)
		if err != nil {
			return fmt.Errorf("❌ verify failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %d blocks OK\n", n)
		return nil
	},
}

func init() {
	verifyCmd.Flags().Int("workers", 0, "parallel block readers (default: verify.workers)")
	rootCmd.AddCommand(verifyCmd)
}

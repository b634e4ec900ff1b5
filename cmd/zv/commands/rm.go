package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm [document] [array]...",
	Short: "Remove arrays from a document",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		doc, err := ZV.Vault.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer doc.Close()

		for _, name := range args[1:] {
			arr, ok := doc.Arrays[name]
			if !ok {
				return fmt.Errorf("no array named %q", name)
			}
			arr.Close()
			delete(doc.Arrays, name)
		}
		if err := ZV.Vault.Update(ctx, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Removed %d array(s), %d left\n", len(args)-1, len(doc.Arrays))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

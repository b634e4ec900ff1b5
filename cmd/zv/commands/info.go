package commands

import (
	"zarrvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [document]",
	Short: "List the arrays stored in a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := ZV.Vault.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer doc.Close()
		return exporter.PrintDocument(cmd.Context(), doc, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

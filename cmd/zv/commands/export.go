package commands

import (
	"fmt"

	"zarrvault/pkg/exporter"
	"zarrvault/pkg/storage/disk"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [document] [array] [directory]",
	Short: "Write an array out as a plain zarr directory",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		doc, err := ZV.Vault.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer doc.Close()

		arr, ok := doc.Arrays[args[1]]
		if !ok {
			return fmt.Errorf("no array named %q", args[1])
		}
		dst, err := disk.NewDirectoryStore(args[2], false)
		if err != nil {
			return err
		}
		n, err := exporter.NewExporter(dst).ExportArray(ctx, arr)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📤 Exported %s (%d chunks) to %s\n", args[1], n, dst.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

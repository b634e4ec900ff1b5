package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat [document] [array] [chunk-key]",
	Short: "Write the raw bytes of one chunk to stdout",
	Long:  `Read a single chunk (for example "0.1") from an array in the document and write it to stdout.`,
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
		data, err := arr.ChunkStore().Get(ctx, args[2])
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		// 二进制内容可以通过 > file.bin 重定向
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"zarrvault/pkg/app"
	"zarrvault/pkg/chunkstore"
	"zarrvault/pkg/vault"
	"zarrvault/pkg/zarr"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [document] [name=store-uri]...",
	Short: "Add zarr arrays to a document",
	Long: `Add one or more zarr arrays to a container document.

Each array is given as name=uri, where uri is a local directory, s3://bucket/prefix,
sqlite://file#namespace or postgres://...#namespace. By default the document only
references the external store; with --embed the chunks are copied into the document.
If the document already exists the arrays are added to it in place.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]
		embed, _ := cmd.Flags().GetBool("embed")

		// 1. 已有文档就在它的基础上追加
		var doc *vault.Document
		if _, err := os.Stat(path); err == nil {
			if doc, err = ZV.Vault.Open(ctx, path); err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer doc.Close()
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		arrays := map[string]*zarr.Array{}
		if doc != nil {
			arrays = doc.Arrays
		}

		// 2. 打开每个外部数组
		for _, arg := range args[1:] {
			name, uri, ok := strings.Cut(arg, "=")
			if !ok || name == "" || uri == "" {
				return fmt.Errorf("invalid array argument %q (want name=uri)", arg)
			}
			arr, err := openArray(ctx, uri)
			if err != nil {
				return fmt.Errorf("array %q: %w", name, err)
			}
			if embed {
				arr = chunkstore.ToInternal(arr)
			}
			arrays[name] = arr
			fmt.Fprintf(cmd.OutOrStdout(), "➕ %s <- %s\n", name, uri)
		}

		// 3. 保存
		if doc != nil {
			if err := ZV.Vault.Update(ctx, doc); err != nil {
				return err
			}
		} else if err := ZV.Vault.Save(ctx, path, arrays); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Saved %d array(s) to %s\n", len(arrays), path)
		return nil
	},
}

func openArray(ctx context.Context, uri string) (*zarr.Array, error) {
	store, err := app.OpenStore(ctx, uri)
	if err != nil {
		return nil, err
	}
	return zarr.Open(ctx, store)
}

func init() {
	importCmd.Flags().Bool("embed", false, "copy chunks into the document instead of referencing the store")
	rootCmd.AddCommand(importCmd)
}

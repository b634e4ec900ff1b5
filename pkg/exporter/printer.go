package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/codec"
	"zarrvault/pkg/converter"
	"zarrvault/pkg/vault"
)

// PrintDocument 以表格形式打印文档中的数组
func PrintDocument(ctx context.Context, doc *vault.Document, w io.Writer) error {
	// 文档树是规范化 CBOR，相同内容的文档摘要相同
	digest := codec.Sum(doc.File().RawTree())
	fmt.Fprintf(w, "📦 %s (%d blocks, tree %s)\n", doc.File().URI(), doc.File().NumBlocks(), digest.String()[:12])

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTORAGE\tSHAPE\tCHUNKS\tDTYPE\tPRESENT")
	for _, name := range doc.Names() {
		arr := doc.Arrays[name]
		meta := arr.Meta()
		keys, err := chunkgrid.EnumeratePresent(ctx, arr.ChunkStore())
		if err != nil {
			return fmt.Errorf("array %q: %w", name, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\t%d/%d\n",
			name, converter.Classify(arr), meta.Shape, meta.Chunks, meta.Dtype,
			len(keys), chunkgrid.Size(meta.GridShape()))
	}
	return tw.Flush()
}

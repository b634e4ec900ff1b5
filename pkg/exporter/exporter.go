package exporter

import (
	"context"
	"fmt"

	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/storage"
	"zarrvault/pkg/zarr"
)

// Exporter 把文档中的数组还原为普通的 zarr 存储
type Exporter struct {
	dst storage.Store
}

func NewExporter(dst storage.Store) *Exporter {
	return &Exporter{dst: dst}
}

// ExportArray 复制元数据和所有已存在的 chunk，返回复制的 chunk 数量
func (e *Exporter) ExportArray(ctx context.Context, arr *zarr.Array) (int, error) {
	// 1. 元数据 (.zarray / .zattrs)
	metaKeys, err := arr.Store().Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list metadata: %w", err)
	}
	for _, key := range metaKeys {
		if !chunkgrid.IsMetadataKey(key) {
			continue
		}
		if err := e.copyKey(ctx, arr.Store(), key); err != nil {
			return 0, err
		}
	}

	// 2. chunk，读失败的 chunk 直接报错，不输出残缺的数组
	keys, err := chunkgrid.EnumeratePresent(ctx, arr.ChunkStore())
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	for _, key := range keys {
		if err := e.copyKey(ctx, arr.ChunkStore(), key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func (e *Exporter) copyKey(ctx context.Context, src storage.Store, key string) error {
	data, err := src.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := e.dst.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Package zarr 是一个最小的 zarr v2 数组模型：
// 只负责元数据和按坐标读写 chunk 字节，不做 dtype 或压缩解码
package zarr

import (
	"context"
	"errors"
	"fmt"

	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/storage"
)

// Array 由一个元数据 store 和一个 (可选的) 独立 chunk store 组成
type Array struct {
	meta       *ArrayMeta
	store      storage.Store
	chunkStore storage.Store
}

// Create 校验元数据并写入 ".zarray"
func Create(ctx context.Context, store storage.Store, meta ArrayMeta) (*Array, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	data, err := meta.EncodeJSON()
	if err != nil {
		return nil, fmt.Errorf("encode array metadata: %w", err)
	}
	if err := store.Set(ctx, MetaKey, data); err != nil {
		return nil, fmt.Errorf("write array metadata: %w", err)
	}
	return &Array{meta: &meta, store: store}, nil
}

// Open 从 store 中读取 ".zarray" 打开数组
func Open(ctx context.Context, store storage.Store) (*Array, error) {
	data, err := store.Get(ctx, MetaKey)
	if err != nil {
		return nil, fmt.Errorf("read array metadata: %w", err)
	}
	meta, err := DecodeMeta(data)
	if err != nil {
		return nil, err
	}
	return &Array{meta: meta, store: store}, nil
}

// New 用已知元数据组装数组，不读写 store
func New(meta ArrayMeta, store, chunkStore storage.Store) *Array {
	return &Array{meta: &meta, store: store, chunkStore: chunkStore}
}

// Meta 返回元数据 (只读)
func (a *Array) Meta() *ArrayMeta { return a.meta }

// Store 返回元数据 store
func (a *Array) Store() storage.Store { return a.store }

// ChunkStore 返回 chunk store，未单独设置时就是元数据 store
func (a *Array) ChunkStore() storage.Store {
	if a.chunkStore != nil {
		return a.chunkStore
	}
	return a.store
}

// HasSeparateChunkStore 判断元数据和 chunk 是否分开存放
func (a *Array) HasSeparateChunkStore() bool {
	return a.chunkStore != nil && a.chunkStore != a.store
}

// WithChunkStore 返回一个共享元数据、但 chunk 写到 cs 的新数组
func (a *Array) WithChunkStore(cs storage.Store) *Array {
	return &Array{meta: a.meta, store: a.store, chunkStore: cs}
}

// ChunkKey 返回坐标对应的 chunk key
func (a *Array) ChunkKey(coord []int) (string, error) {
	grid := a.meta.GridShape()
	if len(coord) != len(grid) {
		return "", fmt.Errorf("%w: coordinate %v has %d dimensions, array has %d",
			chunkgrid.ErrMalformedKey, coord, len(coord), len(grid))
	}
	for i, c := range coord {
		if c < 0 || c >= grid[i] {
			return "", fmt.Errorf("coordinate %v out of range for chunk grid %v", coord, grid)
		}
	}
	return chunkgrid.Encode(coord, a.meta.Separator()), nil
}

// WriteChunk 写入一个 chunk 的原始字节
func (a *Array) WriteChunk(ctx context.Context, coord []int, data []byte) error {
	key, err := a.ChunkKey(coord)
	if err != nil {
		return err
	}
	return a.ChunkStore().Set(ctx, key, data)
}

// ReadChunk 读取一个 chunk，不存在时返回 storage.ErrKeyNotFound
func (a *Array) ReadChunk(ctx context.Context, coord []int) ([]byte, error) {
	key, err := a.ChunkKey(coord)
	if err != nil {
		return nil, err
	}
	return a.ChunkStore().Get(ctx, key)
}

// DeleteChunk 删除一个 chunk
func (a *Array) DeleteChunk(ctx context.Context, coord []int) error {
	key, err := a.ChunkKey(coord)
	if err != nil {
		return err
	}
	return a.ChunkStore().Delete(ctx, key)
}

// Close 释放 store 持有的资源 (例如临时目录)
func (a *Array) Close() error {
	var errs []error
	if c, ok := a.ChunkStore().(storage.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.HasSeparateChunkStore() {
		if c, ok := a.store.(storage.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

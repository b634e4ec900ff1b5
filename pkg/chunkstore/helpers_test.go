package chunkstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"zarrvault/pkg/blockmap"
	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/container"
	"zarrvault/pkg/types"
	"zarrvault/pkg/zarr"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

func testMeta() *zarr.ArrayMeta {
	return &zarr.ArrayMeta{
		ZarrFormat: 2,
		Shape:      []int{6, 9},
		Chunks:     []int{2, 3},
		Dtype:      "|u1",
		Order:      "C",
	}
}

// mustWriteContainer 把 chunks 写成 block，并写入一个 chunk block map
// 返回容器路径和 map 的 block 下标
func mustWriteContainer(t *testing.T, meta *zarr.ArrayMeta, chunks map[string][]byte) (string, int) {
	t.Helper()
	ctx := context.Background()
	w := container.NewWriter()
	m := blockmap.New(meta.GridShape())

	for key, data := range chunks {
		coord, err := chunkgrid.DecodeN(key, meta.Separator(), len(meta.Shape))
		require.NoError(t, err)
		data := data
		idx, err := w.FindOrCreateBlock(ctx, w.GenerateBlockKey(), func(context.Context) ([]byte, error) {
			return data, nil
		})
		require.NoError(t, err)
		require.NoError(t, m.Set(coord, idx))
	}
	mapBytes, err := m.MarshalBinary()
	require.NoError(t, err)
	mapIndex, err := w.FindOrCreateBlock(ctx, w.GenerateBlockKey(), func(context.Context) ([]byte, error) {
		return mapBytes, nil
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "array.zv")
	require.NoError(t, w.WriteFile(ctx, path, map[string]any{}))
	return path, mapIndex
}

// countingResolver 统计每个下标被解析的次数
type countingResolver struct {
	inner BlockResolver
	calls map[int]int
}

func (r *countingResolver) ResolveBlock(ctx context.Context, index int) (container.BlockRef, types.BlockKey, error) {
	r.calls[index]++
	return r.inner.ResolveBlock(ctx, index)
}

// failingResolver 对指定下标返回错误
type failingResolver struct {
	inner BlockResolver
	fail  int
}

func (r *failingResolver) ResolveBlock(ctx context.Context, index int) (container.BlockRef, types.BlockKey, error) {
	if index == r.fail {
		return container.BlockRef{}, "", fmt.Errorf("boom %d", index)
	}
	return r.inner.ResolveBlock(ctx, index)
}

package vault

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"zarrvault/pkg/blockmap"
	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/chunkstore"
	"zarrvault/pkg/container"
	"zarrvault/pkg/converter"
	"zarrvault/pkg/staging"
	"zarrvault/pkg/storage"
	"zarrvault/pkg/storage/disk"
	"zarrvault/pkg/storage/memory"
	"zarrvault/pkg/zarr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meta6x9() zarr.ArrayMeta {
	return zarr.ArrayMeta{
		ZarrFormat: 2,
		Shape:      []int{6, 9},
		Chunks:     []int{2, 3},
		Dtype:      "|u1",
		FillValue:  0,
		Order:      "C",
	}
}

func chunkBytes(coord []int) []byte {
	return []byte(fmt.Sprintf("chunk-%d-%d", coord[0], coord[1]))
}

func filled(coord []int) bool { return (coord[0]+coord[1])%2 == 0 }

// newHalfFilled 创建 6x9 / 2x3 的数组 (3x3 chunk 网格)，填充一半的 chunk
func newHalfFilled(t *testing.T) *zarr.Array {
	t.Helper()
	ctx := context.Background()
	arr, err := zarr.Create(ctx, memory.NewMemoryStore(), meta6x9())
	require.NoError(t, err)
	chunkgrid.EachCoord(arr.Meta().GridShape(), func(coord []int) bool {
		if filled(coord) {
			require.NoError(t, arr.WriteChunk(ctx, coord, chunkBytes(coord)))
		}
		return true
	})
	return arr
}

func mustVault(t *testing.T, opts ...Option) *Vault {
	t.Helper()
	v, err := New(opts...)
	require.NoError(t, err)
	return v
}

func TestVault_EndToEnd(t *testing.T) {
	ctx := context.Background()
	v := mustVault(t)
	path := filepath.Join(t.TempDir(), "doc.zv")

	arrays := map[string]*zarr.Array{"temperature": newHalfFilled(t)}
	require.NoError(t, v.Save(ctx, path, arrays))
	assert.Equal(t, converter.Internal, converter.Classify(arrays["temperature"]), "保存后数组被替换为内部存储")

	doc1, err := v.Open(ctx, path)
	require.NoError(t, err)
	defer doc1.Close()
	doc2, err := v.Open(ctx, path)
	require.NoError(t, err)
	defer doc2.Close()

	arr1 := doc1.Arrays["temperature"]
	arr2 := doc2.Arrays["temperature"]
	require.NotNil(t, arr1)
	assert.Equal(t, converter.ReadInternal, converter.Classify(arr1))

	// 1. 已填充的 chunk 返回原始字节，未填充的返回 ErrKeyNotFound
	chunkgrid.EachCoord(arr1.Meta().GridShape(), func(coord []int) bool {
		data, err := arr1.ReadChunk(ctx, coord)
		if filled(coord) {
			require.NoError(t, err)
			assert.Equal(t, chunkBytes(coord), data)
		} else {
			assert.ErrorIs(t, err, storage.ErrKeyNotFound, "chunk %v", coord)
		}
		return true
	})

	// 2. 修改一份副本不影响另一份独立加载的副本
	require.NoError(t, arr1.WriteChunk(ctx, []int{0, 0}, []byte("mutated")))
	data, err := arr1.ReadChunk(ctx, []int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte("mutated"), data)

	data, err = arr2.ReadChunk(ctx, []int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, chunkBytes([]int{0, 0}), data)

	n, err := container.Verify(ctx, path, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, n, "5 个 chunk + 1 个 map")
}

// blockLayout 返回每个 chunk key 在文件中的 block 下标
func blockLayout(t *testing.T, path string) (map[string]int, int) {
	t.Helper()
	f, err := container.Open(context.Background(), path)
	require.NoError(t, err)
	var tree Tree
	require.NoError(t, f.Tree(&tree))

	node := tree.Arrays["a"]
	require.NotNil(t, node)
	require.True(t, node.IsInternal())

	raw, err := f.ReadBlock(context.Background(), *node.ChunkBlockMap)
	require.NoError(t, err)
	layout := map[string]int{}
	m, err := blockmap.Decode(raw, node.Meta.GridShape())
	require.NoError(t, err)
	require.NoError(t, m.Each(func(coord []int, index int) error {
		layout[chunkgrid.Encode(coord, ".")] = index
		return nil
	}))
	return layout, *node.ChunkBlockMap
}

func TestVault_IdempotentResave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v := mustVault(t)

	arrays := map[string]*zarr.Array{"a": newHalfFilled(t)}
	first := filepath.Join(dir, "v1.zv")
	require.NoError(t, v.Save(ctx, first, arrays))
	store := arrays["a"].ChunkStore()

	// 同一个 Vault 再次保存同一个数组：下标完全相同
	second := filepath.Join(dir, "v2.zv")
	require.NoError(t, v.Save(ctx, second, arrays))
	assert.Same(t, store.(*chunkstore.Store), arrays["a"].ChunkStore().(*chunkstore.Store))

	l1, m1 := blockLayout(t, first)
	l2, m2 := blockLayout(t, second)
	assert.Equal(t, l1, l2)
	assert.Equal(t, m1, m2)

	// 另一个 Vault 打开后基于上一个文件保存：下标依然相同
	other := mustVault(t)
	doc, err := other.Open(ctx, first)
	require.NoError(t, err)
	third := filepath.Join(dir, "v3.zv")
	require.NoError(t, other.Save(ctx, third, doc.Arrays, WithPrevious(doc)))
	l3, m3 := blockLayout(t, third)
	assert.Equal(t, l1, l3)
	assert.Equal(t, m1, m3)
}

func TestVault_ResaveAfterMutation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v := mustVault(t)

	first := filepath.Join(dir, "v1.zv")
	require.NoError(t, v.Save(ctx, first, map[string]*zarr.Array{"a": newHalfFilled(t)}))

	doc, err := v.Open(ctx, first)
	require.NoError(t, err)
	arr := doc.Arrays["a"]
	require.NoError(t, arr.DeleteChunk(ctx, []int{0, 0}))
	require.NoError(t, arr.WriteChunk(ctx, []int{0, 1}, []byte("new")))
	require.NoError(t, arr.WriteChunk(ctx, []int{1, 1}, []byte("rewritten")))

	second := filepath.Join(dir, "v2.zv")
	require.NoError(t, v.Save(ctx, second, doc.Arrays, WithPrevious(doc)))

	l1, _ := blockLayout(t, first)
	l2, _ := blockLayout(t, second)
	assert.NotContains(t, l2, "0.0")
	assert.Equal(t, l1["1.1"], l2["1.1"], "改写的 chunk 复用原来的 block")
	assert.Equal(t, l1["2.2"], l2["2.2"])

	reopened, err := v.Open(ctx, second)
	require.NoError(t, err)
	data, err := reopened.Arrays["a"].ReadChunk(ctx, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("rewritten"), data)
	data, err = reopened.Arrays["a"].ReadChunk(ctx, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
	_, err = reopened.Arrays["a"].ReadChunk(ctx, []int{0, 0})
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestVault_UpdateInPlace(t *testing.T) {
	ctx := context.Background()
	v := mustVault(t, WithCompression(container.CompressionZstd))
	path := filepath.Join(t.TempDir(), "doc.zv")
	require.NoError(t, v.Save(ctx, path, map[string]*zarr.Array{"a": newHalfFilled(t)}))

	doc, err := v.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, doc.Arrays["a"].WriteChunk(ctx, []int{2, 1}, []byte("added")))
	require.NoError(t, v.Update(ctx, doc))

	// 原地写回后数组指向新文件，所有 chunk 依然可读
	chunkgrid.EachCoord([]int{3, 3}, func(coord []int) bool {
		data, err := doc.Arrays["a"].ReadChunk(ctx, coord)
		switch {
		case coord[0] == 2 && coord[1] == 1:
			require.NoError(t, err)
			assert.Equal(t, []byte("added"), data)
		case filled(coord):
			require.NoError(t, err)
			assert.Equal(t, chunkBytes(coord), data)
		default:
			assert.ErrorIs(t, err, storage.ErrKeyNotFound)
		}
		return true
	})
	assert.Equal(t, 7, doc.File().NumBlocks())
}

func TestVault_SaveOverSourceWithoutPrevious(t *testing.T) {
	ctx := context.Background()
	v := mustVault(t)
	path := filepath.Join(t.TempDir(), "doc.zv")
	require.NoError(t, v.Save(ctx, path, map[string]*zarr.Array{"a": newHalfFilled(t)}))
	before, _ := blockLayout(t, path)

	doc, err := v.Open(ctx, path)
	require.NoError(t, err)
	defer doc.Close()
	require.NoError(t, doc.Arrays["a"].DeleteChunk(ctx, []int{0, 0}))

	// 没有 WithPrevious，直接覆盖数组来源的文件
	require.NoError(t, v.Save(ctx, path, doc.Arrays))

	// 1. 数组已经改为读取新文件，每个 chunk 都是自己的内容
	chunkgrid.EachCoord([]int{3, 3}, func(coord []int) bool {
		data, err := doc.Arrays["a"].ReadChunk(ctx, coord)
		if filled(coord) && !(coord[0] == 0 && coord[1] == 0) {
			require.NoError(t, err, "chunk %v", coord)
			assert.Equal(t, chunkBytes(coord), data, "chunk %v", coord)
		} else {
			assert.ErrorIs(t, err, storage.ErrKeyNotFound, "chunk %v", coord)
		}
		return true
	})

	// 2. 旧文件被隐式当作 previous，剩下的 chunk 保持原来的下标
	after, _ := blockLayout(t, path)
	assert.NotContains(t, after, "0.0")
	for key, index := range after {
		assert.Equal(t, before[key], index, key)
	}

	// 3. 重新打开也一致
	reopened, err := v.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	data, err := reopened.Arrays["a"].ReadChunk(ctx, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, chunkBytes([]int{0, 2}), data)
}

func TestVault_MixedExternal(t *testing.T) {
	ctx := context.Background()
	v := mustVault(t, WithStagingFactory(staging.TempFactory(t.TempDir())))

	dirStore, err := disk.NewDirectoryStore(t.TempDir(), false)
	require.NoError(t, err)
	ext, err := zarr.Create(ctx, dirStore, meta6x9())
	require.NoError(t, err)
	require.NoError(t, ext.WriteChunk(ctx, []int{1, 1}, []byte("on-disk")))

	kv := memory.NewKVStore(nil)
	small, err := zarr.Create(ctx, kv, meta6x9())
	require.NoError(t, err)
	require.NoError(t, small.WriteChunk(ctx, []int{0, 0}, []byte("kv")))

	path := filepath.Join(t.TempDir(), "mixed.zv")
	require.NoError(t, v.Save(ctx, path, map[string]*zarr.Array{"ext": ext, "small": small}))

	doc, err := v.Open(ctx, path)
	require.NoError(t, err)
	defer doc.Close()
	assert.Equal(t, []string{"ext", "small"}, doc.Names())
	assert.Equal(t, converter.External, converter.Classify(doc.Arrays["ext"]))
	assert.Equal(t, converter.ReadInternal, converter.Classify(doc.Arrays["small"]))

	data, err := doc.Arrays["ext"].ReadChunk(ctx, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("on-disk"), data)
	data, err = doc.Arrays["small"].ReadChunk(ctx, []int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte("kv"), data)
}

// opaque 不能编码也不会被转换
type opaque struct{ *memory.MemoryStore }

func (opaque) Type() string { return "Opaque" }

func TestVault_UnsupportedStoreWritesNothing(t *testing.T) {
	ctx := context.Background()
	v := mustVault(t)
	path := filepath.Join(t.TempDir(), "bad.zv")

	arr := zarr.New(meta6x9(), memory.NewMemoryStore(), opaque{memory.NewMemoryStore()})
	err := v.Save(ctx, path, map[string]*zarr.Array{"x": arr})
	assert.ErrorIs(t, err, storage.ErrUnsupportedStore)
	assert.NoFileExists(t, path)

	_, err = New(WithCompression("brotli"))
	assert.Error(t, err)
}

package zarr

import (
	"context"
	"encoding/json"
	"testing"

	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/storage"
	"zarrvault/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() ArrayMeta {
	return ArrayMeta{
		ZarrFormat: 2,
		Shape:      []int{6, 9},
		Chunks:     []int{2, 3},
		Dtype:      "<i4",
		Compressor: nil,
		FillValue:  0,
		Order:      "C",
	}
}

func TestArrayMeta_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *ArrayMeta)
		ok     bool
	}{
		{"valid", func(m *ArrayMeta) {}, true},
		{"nested separator", func(m *ArrayMeta) { m.DimensionSeparator = "/" }, true},
		{"bad format", func(m *ArrayMeta) { m.ZarrFormat = 3 }, false},
		{"rank mismatch", func(m *ArrayMeta) { m.Chunks = []int{2} }, false},
		{"zero chunk", func(m *ArrayMeta) { m.Chunks = []int{0, 3} }, false},
		{"bad separator", func(m *ArrayMeta) { m.DimensionSeparator = "-" }, false},
		{"bad order", func(m *ArrayMeta) { m.Order = "X" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMeta()
			tt.modify(&m)
			err := m.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMeta)
			}
		})
	}
}

func TestArrayMeta_JSON(t *testing.T) {
	m := testMeta()
	data, err := m.EncodeJSON()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "zarr_format")
	assert.NotContains(t, raw, "dimension_separator", "为空时不输出")

	back, err := DecodeMeta(data)
	require.NoError(t, err)
	assert.Equal(t, m.Shape, back.Shape)
	assert.Equal(t, ".", back.Separator())
	assert.Equal(t, []int{3, 3}, back.GridShape())
}

func TestArray_CreateOpenReadWrite(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore()

	arr, err := Create(ctx, store, testMeta())
	require.NoError(t, err)

	require.NoError(t, arr.WriteChunk(ctx, []int{1, 2}, []byte("chunk-12")))

	_, err = arr.ReadChunk(ctx, []int{0, 0})
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	_, err = arr.ReadChunk(ctx, []int{3, 0})
	assert.Error(t, err, "越界")

	opened, err := Open(ctx, store)
	require.NoError(t, err)
	data, err := opened.ReadChunk(ctx, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-12"), data)

	keys, err := chunkgrid.EnumeratePresent(ctx, opened.ChunkStore())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2"}, keys)

	require.NoError(t, opened.DeleteChunk(ctx, []int{1, 2}))
	_, err = arr.ReadChunk(ctx, []int{1, 2})
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestArray_WithChunkStore(t *testing.T) {
	ctx := context.Background()
	metaStore := memory.NewMemoryStore()
	arr, err := Create(ctx, metaStore, testMeta())
	require.NoError(t, err)
	assert.False(t, arr.HasSeparateChunkStore())
	assert.Same(t, metaStore, arr.ChunkStore())

	chunks := memory.NewMemoryStore()
	split := arr.WithChunkStore(chunks)
	assert.True(t, split.HasSeparateChunkStore())
	require.NoError(t, split.WriteChunk(ctx, []int{0, 0}, []byte("x")))

	has, err := storage.Has(ctx, metaStore, "0.0")
	require.NoError(t, err)
	assert.False(t, has, "chunk 不应该写进元数据 store")
}

func TestOpen_MissingMeta(t *testing.T) {
	_, err := Open(context.Background(), memory.NewMemoryStore())
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

package staging

import (
	"context"
	"math/rand"
	"os"
	"sort"
	"testing"

	"zarrvault/pkg/storage"
	"zarrvault/pkg/storage/disk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArea_LazyMaterialization(t *testing.T) {
	ctx := context.Background()
	area := New(nil)

	// 只读操作不会分配存储
	_, err := area.Get(ctx, "0.0")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	require.NoError(t, area.Delete(ctx, "0.0"))
	keys, err := area.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.False(t, area.Materialized())

	require.NoError(t, area.Set(ctx, "0.0", []byte("a")))
	assert.True(t, area.Materialized())
	assert.Equal(t, "MemoryStore", area.Backing())
}

func TestArea_TombstoneClearedOnOverwrite(t *testing.T) {
	ctx := context.Background()
	area := New(nil)

	require.NoError(t, area.Set(ctx, "1.1", []byte("old")))
	require.NoError(t, area.Delete(ctx, "1.1"))
	assert.True(t, area.Deleted("1.1"))
	_, err := area.Get(ctx, "1.1")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	require.NoError(t, area.Set(ctx, "1.1", []byte("new")))
	assert.False(t, area.Deleted("1.1"))
	data, err := area.Get(ctx, "1.1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

// TestArea_ModelBased 随机交错 Set/Delete，与参考模型对比 Keys 和 Get
func TestArea_ModelBased(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	universe := []string{"0.0", "0.1", "0.2", "1.0", "1.1", "1.2", "2.0"}

	for round := 0; round < 20; round++ {
		area := New(nil)
		model := map[string][]byte{}

		for step := 0; step < 200; step++ {
			key := universe[rng.Intn(len(universe))]
			if rng.Intn(3) == 0 {
				require.NoError(t, area.Delete(ctx, key))
				delete(model, key)
			} else {
				val := []byte{byte(round), byte(step)}
				require.NoError(t, area.Set(ctx, key, val))
				model[key] = val
			}

			want := make([]string, 0, len(model))
			for k := range model {
				want = append(want, k)
			}
			sort.Strings(want)

			got, err := area.Keys(ctx)
			require.NoError(t, err)
			if len(want) == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, want, got)
			}

			for _, k := range universe {
				data, err := area.Get(ctx, k)
				if v, ok := model[k]; ok {
					require.NoError(t, err)
					assert.Equal(t, v, data)
				} else {
					assert.ErrorIs(t, err, storage.ErrKeyNotFound)
				}
			}
		}
	}
}

func TestArea_TempBackedClose(t *testing.T) {
	ctx := context.Background()
	area := New(TempFactory(t.TempDir()))

	require.NoError(t, area.Set(ctx, "0", []byte("x")))
	assert.Equal(t, disk.TempStoreType, area.Backing())

	temp := area.backing.(*disk.TempStore)
	dir := temp.Path()
	_, err := os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, area.Close())
	assert.False(t, area.Materialized())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "临时目录应该被删除")
}

package memory

import (
	"context"
	"testing"

	"zarrvault/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Basic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// 1. 不存在的 key
	_, err := s.Get(ctx, "0.0")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	// 2. 写入并读取
	require.NoError(t, s.Set(ctx, "0.0", []byte("abc")))
	got, err := s.Get(ctx, "0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	// 3. 返回的是副本，修改不影响存储
	got[0] = 'x'
	again, err := s.Get(ctx, "0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)

	// 4. 删除是幂等的
	require.NoError(t, s.Delete(ctx, "0.0"))
	require.NoError(t, s.Delete(ctx, "0.0"))
	n, err := storage.Len(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_NotEncodable(t *testing.T) {
	_, err := storage.Encode(NewMemoryStore())
	assert.ErrorIs(t, err, storage.ErrUnsupportedStore)
}

func TestKVStore_DescriptorRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewKVStore(map[string][]byte{".zarray": []byte(`{"shape":[6,9]}`)})
	require.NoError(t, src.Set(ctx, "1.2", []byte{1, 2, 3}))

	desc, err := storage.Encode(src)
	require.NoError(t, err)
	assert.Equal(t, KVStoreType, desc[storage.TypeStringKey])

	decoded, err := storage.Decode(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, KVStoreType, decoded.Type())

	keys, err := decoded.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".zarray", "1.2"}, keys)

	v, err := decoded.Get(ctx, "1.2")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := storage.Decode(context.Background(), storage.Descriptor{storage.TypeStringKey: "FTPStore"})
	assert.ErrorIs(t, err, storage.ErrUnsupportedStore)

	_, err = storage.Decode(context.Background(), storage.Descriptor{})
	assert.ErrorIs(t, err, storage.ErrUnsupportedStore)
}

package cache

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"zarrvault/pkg/storage"
	"zarrvault/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. SpyStore (间谍存储)
// 用于统计底层方法被调用的次数，验证请求是否穿透了缓存
// -----------------------------------------------------------------------------
type SpyStore struct {
	*memory.KVStore
	getCount int32
}

func NewSpyStore() *SpyStore {
	return &SpyStore{KVStore: memory.NewKVStore(nil)}
}

func (s *SpyStore) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt32(&s.getCount, 1) // 记录调用次数
	return s.KVStore.Get(ctx, key)
}

const redisAddr = "localhost:6379"

func requireRedis(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()
}

func TestNewCachedStore_InvalidURL(t *testing.T) {
	_, err := NewCachedStore(memory.NewKVStore(nil), Config{RedisURL: "not-a-url"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

// -----------------------------------------------------------------------------
// 2. 集成测试
// -----------------------------------------------------------------------------

func TestCachedStore_Integration(t *testing.T) {
	// A. 环境检查: 确保 Redis 在运行
	requireRedis(t)

	// B. 初始化
	ctx := context.Background()
	spy := NewSpyStore()
	cfg := Config{
		RedisURL: fmt.Sprintf("redis://%s/0", redisAddr),
		TTL:      1 * time.Hour,
		Prefix:   fmt.Sprintf("zv:test:%d:", time.Now().UnixNano()),
	}
	cachedStore, err := NewCachedStore(spy, cfg)
	require.NoError(t, err)
	defer cachedStore.Close()

	// --- Step 1: Cache Miss on absent key ---
	_, err = cachedStore.Get(ctx, "0.0")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.getCount), "Backend Get() should be called on miss")

	// --- Step 2: Set (Write-Through) ---
	require.NoError(t, cachedStore.Set(ctx, "0.0", []byte("chunk-00")))
	cached, err := cachedStore.client.Get(ctx, cachedStore.cacheKey("0.0")).Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-00"), cached, "Redis key should be set after Set")

	// --- Step 3: Cache Hit ---
	data, err := cachedStore.Get(ctx, "0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk-00"), data)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.getCount), "Backend Get() should NOT be called on hit")

	// --- Step 4: Backend 直写的数据在第一次读取后被回填 ---
	require.NoError(t, spy.KVStore.Set(ctx, "0.1", []byte("chunk-01")))
	_, err = cachedStore.Get(ctx, "0.1")
	require.NoError(t, err)
	_, err = cachedStore.Get(ctx, "0.1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.getCount))

	// --- Step 5: Delete 使缓存失效 ---
	require.NoError(t, cachedStore.Delete(ctx, "0.0"))
	_, err = cachedStore.Get(ctx, "0.0")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	keys, err := cachedStore.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.1"}, keys)
}

func TestCachedStore_DescriptorRoundTrip(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	backend := memory.NewKVStore(map[string][]byte{"0": []byte("x")})
	cachedStore, err := NewCachedStore(backend, Config{
		RedisURL: fmt.Sprintf("redis://%s/0", redisAddr),
		TTL:      time.Minute,
	})
	require.NoError(t, err)
	defer cachedStore.Close()

	desc, err := storage.Encode(cachedStore)
	require.NoError(t, err)
	assert.Equal(t, CachedStoreType, desc[storage.TypeStringKey])
	assert.Equal(t, "1m0s", desc["ttl"])

	restored, err := storage.Decode(ctx, desc)
	require.NoError(t, err)
	defer restored.(*CachedStore).Close()

	assert.Equal(t, memory.KVStoreType, restored.(*CachedStore).Backend().Type())
	data, err := restored.Get(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

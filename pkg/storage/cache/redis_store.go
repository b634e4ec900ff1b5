package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zarrvault/pkg/storage"

	"github.com/redis/go-redis/v9"
)

const CachedStoreType = "CachedStore"

// DefaultPrefix 是 Redis key 的默认前缀
const DefaultPrefix = "zv:chunk:"

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 读缓存
// 适用于远端存储 (S3 / SQL)：同一个 chunk 被反复读取时不再走网络
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client // Redis 客户端
	cfg     Config
}

var (
	_ storage.Store     = (*CachedStore)(nil)
	_ storage.Describer = (*CachedStore)(nil)
	_ storage.Closer    = (*CachedStore)(nil)
)

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间，0 表示不过期
	Prefix   string        // key 前缀，不同数组共享一个 Redis 时用来隔离
}

// NewCachedStore 接收 Config 结构体，连接失败时 fail-fast
func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	// 解析 URL
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		cfg:     cfg,
	}, nil
}

func (s *CachedStore) Type() string { return CachedStoreType }

// Backend 返回被装饰的底层存储
func (s *CachedStore) Backend() storage.Store { return s.backend }

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(key string) string {
	return s.cfg.Prefix + key
}

// Get 优先查 Redis，未命中时穿透到底层存储并回填
func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	ck := s.cacheKey(key)

	// 1. 查 Redis
	data, err := s.client.Get(ctx, ck).Bytes()
	switch {
	case err == nil:
		// Cache Hit
		return data, nil
	case errors.Is(err, redis.Nil):
		// Cache Miss，正常情况
	default:
		// 缓存故障降级：Redis 挂了就退化为无缓存模式
		slog.Warn("redis get failed, falling back to backend", slog.String("key", key), slog.Any("error", err))
	}

	// 2. 查底层存储 (不存在的 key 不缓存，直接返回 ErrKeyNotFound)
	data, err = s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// 3. 缓存回填 (同步执行，失败只记日志)
	if err := s.client.Set(ctx, ck, data, s.cfg.TTL).Err(); err != nil {
		slog.Warn("redis fill failed", slog.String("key", key), slog.Any("error", err))
	}
	return data, nil
}

// Set 先写底层存储，成功后再更新缓存
func (s *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.backend.Set(ctx, key, value); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.cacheKey(key), value, s.cfg.TTL).Err(); err != nil {
		// 写缓存失败时必须删掉旧值，否则会读到过期数据
		slog.Warn("redis set failed", slog.String("key", key), slog.Any("error", err))
		s.client.Del(ctx, s.cacheKey(key))
	}
	return nil
}

// Delete 删除底层数据并让缓存失效
func (s *CachedStore) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.cacheKey(key)).Err(); err != nil {
		slog.Warn("redis del failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}

// Keys 透传 - 列表总是以底层存储为准
func (s *CachedStore) Keys(ctx context.Context) ([]string, error) {
	return s.backend.Keys(ctx)
}

// Describe 把底层存储的描述符嵌套在 backend 字段里
func (s *CachedStore) Describe() (storage.Descriptor, error) {
	backend, err := storage.Encode(s.backend)
	if err != nil {
		return nil, fmt.Errorf("encode cache backend: %w", err)
	}
	return storage.Descriptor{
		"redis_url": s.cfg.RedisURL,
		"ttl":       s.cfg.TTL.String(),
		"prefix":    s.cfg.Prefix,
		"backend":   backend,
	}, nil
}

// Close 关闭 Redis 连接，底层存储如果持有资源也一起关闭
func (s *CachedStore) Close() error {
	err := s.client.Close()
	if c, ok := s.backend.(storage.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func decodeCachedStore(ctx context.Context, d storage.Descriptor) (storage.Store, error) {
	redisURL, err := d.String("redis_url")
	if err != nil {
		return nil, err
	}
	var ttl time.Duration
	if raw := d.StringOr("ttl", ""); raw != "" {
		if ttl, err = time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("invalid cache ttl %q: %w", raw, err)
		}
	}
	sub, err := d.Sub("backend")
	if err != nil {
		return nil, err
	}
	backend, err := storage.Decode(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("decode cache backend: %w", err)
	}
	return NewCachedStore(backend, Config{
		RedisURL: redisURL,
		TTL:      ttl,
		Prefix:   d.StringOr("prefix", ""),
	})
}

func init() {
	storage.RegisterDecoder(CachedStoreType, decodeCachedStore)
}

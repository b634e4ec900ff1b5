// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"zarrvault/pkg/staging"
	"zarrvault/pkg/storage"
	_ "zarrvault/pkg/storage/backends"
	"zarrvault/pkg/storage/cache"
	"zarrvault/pkg/storage/disk"
	"zarrvault/pkg/storage/s3"
	"zarrvault/pkg/storage/sqlkv"
	"zarrvault/pkg/vault"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器
// 它只读 Viper，不知道具体的 CLI 命令
type App struct {
	Vault      *vault.Vault
	Workers    int
	ServerAddr string
}

// NewApp 按配置组装 Vault 并安装默认 logger
func NewApp() (*App, error) {
	// 1. 日志
	level, err := parseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// 2. 暂存区
	factory, err := stagingFactory()
	if err != nil {
		return nil, err
	}

	// 3. Vault
	v, err := vault.New(
		vault.WithCompression(viper.GetString("container.compression")),
		vault.WithStagingFactory(factory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init vault: %w", err)
	}

	return &App{
		Vault:      v,
		Workers:    viper.GetInt("verify.workers"),
		ServerAddr: viper.GetString("server.addr"),
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", s, err)
	}
	return level, nil
}

func stagingFactory() (staging.Factory, error) {
	switch backend := viper.GetString("staging.backend"); backend {
	case "", "memory":
		return staging.MemoryFactory, nil
	case "temp":
		return staging.TempFactory(viper.GetString("staging.dir")), nil
	default:
		return nil, fmt.Errorf("unsupported staging backend: %s", backend)
	}
}

// OpenStore 按 URI 打开一个外部存储
//
//	s3://bucket/prefix            S3 (region / endpoint / 凭证来自 s3.*)
//	sqlite://path#namespace       SQLite 表
//	postgres://...#namespace      Postgres 表
//	其它                          本地目录
//
// 配置了 cache.redis_url 时，远端存储外面会再包一层 Redis 缓存
func OpenStore(ctx context.Context, uri string) (storage.Store, error) {
	store, remote, err := openBackend(ctx, uri)
	if err != nil {
		return nil, err
	}
	redisURL := viper.GetString("cache.redis_url")
	if !remote || redisURL == "" {
		return store, nil
	}
	cached, err := cache.NewCachedStore(store, cache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration("cache.ttl"),
		Prefix:   viper.GetString("cache.prefix"),
	})
	if err != nil {
		if c, ok := store.(storage.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	return cached, nil
}

func openBackend(ctx context.Context, uri string) (storage.Store, bool, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
		store, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          bucket,
			Prefix:          prefix,
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
		})
		return store, true, err

	case strings.HasPrefix(uri, "sqlite://"):
		dsn, ns, _ := strings.Cut(strings.TrimPrefix(uri, "sqlite://"), "#")
		store, err := sqlkv.Open(ctx, sqlkv.Config{Dialect: "sqlite", DSN: dsn, Namespace: ns})
		return store, false, err

	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		dsn, ns, _ := strings.Cut(uri, "#")
		store, err := sqlkv.Open(ctx, sqlkv.Config{Dialect: "postgres", DSN: dsn, Namespace: ns})
		return store, true, err

	default:
		if _, err := os.Stat(uri); err != nil {
			return nil, false, fmt.Errorf("open directory store: %w", err)
		}
		store, err := disk.NewDirectoryStore(uri, false)
		return store, false, err
	}
}

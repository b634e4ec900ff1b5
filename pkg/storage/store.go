package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound 表示 key 不存在 (或已被删除)，调用方应当视为“块缺失”
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnsupportedOperation 表示该存储不支持此操作 (例如层级 listdir)
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrUnsupportedStore 表示该存储类型无法被编码/解码为描述符
	ErrUnsupportedStore = errors.New("unsupported store")
)

// Store 是 chunk 数据所依赖的最小 Key-Value 契约
// 实现可以是内存、本地目录、S3、SQL 或者容器内部块
type Store interface {
	// Get 读取 key 对应的完整数据
	// key 不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 覆盖写入 key
	Set(ctx context.Context, key string, value []byte) error

	// Delete 删除 key，key 不存在时不报错 (幂等)
	Delete(ctx context.Context, key string) error

	// Keys 列出当前所有 key，顺序不保证
	Keys(ctx context.Context) ([]string, error)

	// Type 返回存储类型名 (对应描述符里的 type_string)
	Type() string
}

// Closer 由持有临时资源的存储实现 (例如 TempStore)
type Closer interface {
	Close() error
}

// Len 计算存储中的 key 数量 (每次重新统计，不缓存)
func Len(ctx context.Context, s Store) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Has 检查 key 是否存在
func Has(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

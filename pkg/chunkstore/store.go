// Package chunkstore 实现以容器 block 为后端的 chunk 存储
//
// 三种形态共用一个 Store 类型，用 Kind 区分：
//   - KindInternal: 只有暂存区
//   - KindConverted: 暂存区 + 只读的源存储 (未改写的 chunk 直接从源读取)
//   - KindRead: 暂存区 + 从 chunk block map 解析出的 BlockRef 表
//
// 暂存区未命中时才查询 base，删除标记总是优先
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/staging"
	"zarrvault/pkg/storage"
	"zarrvault/pkg/types"
)

// StoreType 是内部存储的类型名，内部存储不能编码为描述符
const StoreType = "InternalStore"

// Kind 标记存储形态
type Kind int

const (
	KindInternal Kind = iota + 1
	KindConverted
	KindRead
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindConverted:
		return "converted"
	case KindRead:
		return "read"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// base 是暂存区未命中时的后备数据源
type base interface {
	get(ctx context.Context, key string) ([]byte, error)
	keys(ctx context.Context) ([]string, error)
}

// Store 不加锁，同一个实例的并发修改需要调用方串行化
type Store struct {
	kind      Kind
	staging   *staging.Area
	base      base
	separator string
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Closer = (*Store)(nil)
)

// Option 配置 Store
type Option func(*Store)

// WithStagingFactory 指定暂存区的底层存储 (默认内存)
func WithStagingFactory(f staging.Factory) Option {
	return func(s *Store) { s.staging = staging.New(f) }
}

func newStore(kind Kind, b base, opts ...Option) *Store {
	s := &Store{
		kind:      kind,
		staging:   staging.New(nil),
		base:      b,
		separator: chunkgrid.DefaultSeparator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New 创建一个空的内部存储
func New(opts ...Option) *Store {
	return newStore(KindInternal, nil, opts...)
}

func (s *Store) Type() string { return StoreType }

// Kind 返回存储形态
func (s *Store) Kind() Kind { return s.kind }

// Get 读取顺序: 删除标记 -> 暂存区 -> base
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.staging.Deleted(key) {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	data, err := s.staging.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, err
	}
	if s.base == nil {
		return nil, err
	}
	return s.base.get(ctx, key)
}

// Set 写入暂存区
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.staging.Set(ctx, key, value)
}

// Delete 在暂存区留下删除标记，同时遮蔽 base 中的同名 key
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.staging.Delete(ctx, key)
}

// Keys 返回 暂存区 ∪ base - 删除标记，已排序
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	staged, err := s.staging.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if s.base == nil {
		return staged, nil
	}

	baseKeys, err := s.base.keys(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(staged)+len(baseKeys))
	out := make([]string, 0, len(staged)+len(baseKeys))
	for _, k := range staged {
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, k := range baseKeys {
		if _, dup := seen[k]; dup || s.staging.Deleted(k) {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Len 每次重新统计
func (s *Store) Len(ctx context.Context) (int, error) {
	return storage.Len(ctx, s)
}

// ListDir 只支持根路径，本存储是扁平的
func (s *Store) ListDir(ctx context.Context, path string) ([]string, error) {
	if path != "" {
		return nil, fmt.Errorf("%w: listdir %q on %s", storage.ErrUnsupportedOperation, path, StoreType)
	}
	return s.Keys(ctx)
}

// Close 释放暂存区
func (s *Store) Close() error {
	return s.staging.Close()
}

// Staged 判断 key 是否在暂存区中被改写过 (写入或删除)
func (s *Store) Staged(ctx context.Context, key string) bool {
	if s.staging.Deleted(key) {
		return true
	}
	_, err := s.staging.Get(ctx, key)
	return err == nil
}

// ResolvedBlockKey 返回从容器加载时该 chunk 的稳定 key
func (s *Store) ResolvedBlockKey(key string) (types.BlockKey, bool) {
	rb, ok := s.base.(*refBase)
	if !ok {
		return "", false
	}
	c, ok := rb.claims[key]
	return c, ok && !c.IsZero()
}

// ReadsFrom 判断读存储是否还有 chunk 引用 uri 处的容器
func (s *Store) ReadsFrom(uri string) bool {
	rb, ok := s.base.(*refBase)
	if !ok {
		return false
	}
	for _, ref := range rb.refs {
		if ref.URI == uri {
			return true
		}
	}
	return false
}

// MapBlockKey 返回从容器加载时 chunk block map 的稳定 key
func (s *Store) MapBlockKey() (types.BlockKey, bool) {
	rb, ok := s.base.(*refBase)
	if !ok || rb.mapClaim.IsZero() {
		return "", false
	}
	return rb.mapClaim, true
}

// Source 返回转换形态下被覆盖的源存储
func (s *Store) Source() (storage.Store, bool) {
	sb, ok := s.base.(*sourceBase)
	if !ok {
		return nil, false
	}
	return sb.src, true
}

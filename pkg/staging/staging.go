// Package staging 实现 chunk 的暂存区
// 写入先落在这里，保存文档时才变成容器里的 block
package staging

import (
	"context"
	"fmt"
	"sort"

	"zarrvault/pkg/storage"
	"zarrvault/pkg/storage/disk"
	"zarrvault/pkg/storage/memory"
)

// Factory 在第一次写入时创建底层存储
type Factory func(ctx context.Context) (storage.Store, error)

// MemoryFactory 使用内存存储 (默认)
func MemoryFactory(ctx context.Context) (storage.Store, error) {
	return memory.NewMemoryStore(), nil
}

// TempFactory 使用 dir 下的临时目录，dir 为空时使用系统临时目录
func TempFactory(dir string) Factory {
	return func(ctx context.Context) (storage.Store, error) {
		return disk.NewTempStore(dir)
	}
}

// Area 是带删除标记 (tombstone) 的暂存区
// 不加锁：同一个 Area 的并发修改需要调用方自己串行化
type Area struct {
	factory Factory
	backing storage.Store // 延迟创建，只读实例永远不会分配
	deleted map[string]struct{}
}

// New 创建暂存区，factory 为 nil 时使用内存
func New(factory Factory) *Area {
	if factory == nil {
		factory = MemoryFactory
	}
	return &Area{
		factory: factory,
		deleted: make(map[string]struct{}),
	}
}

// Set 写入 key 并清除它的删除标记
func (a *Area) Set(ctx context.Context, key string, data []byte) error {
	// 1. 第一次写入时才创建底层存储
	if a.backing == nil {
		backing, err := a.factory(ctx)
		if err != nil {
			return fmt.Errorf("create staging store: %w", err)
		}
		a.backing = backing
	}

	// 2. 写入数据
	if err := a.backing.Set(ctx, key, data); err != nil {
		return err
	}

	// 3. 覆盖写入会让之前的删除失效
	delete(a.deleted, key)
	return nil
}

// Delete 标记 key 已删除，key 不需要事先存在
func (a *Area) Delete(ctx context.Context, key string) error {
	a.deleted[key] = struct{}{}
	if a.backing == nil {
		return nil
	}
	return a.backing.Delete(ctx, key)
}

// Get 读取暂存的数据
// 已删除、从未写入或者尚未分配存储时返回 storage.ErrKeyNotFound
func (a *Area) Get(ctx context.Context, key string) ([]byte, error) {
	if a.Deleted(key) || a.backing == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	return a.backing.Get(ctx, key)
}

// Keys 返回当前存在的 key (写入过且未被删除)，已排序
func (a *Area) Keys(ctx context.Context) ([]string, error) {
	if a.backing == nil {
		return nil, nil
	}
	all, err := a.backing.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if !a.Deleted(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Deleted 判断 key 是否带有删除标记
func (a *Area) Deleted(key string) bool {
	_, ok := a.deleted[key]
	return ok
}

// Materialized 判断底层存储是否已经创建
func (a *Area) Materialized() bool { return a.backing != nil }

// Backing 返回底层存储类型名，未创建时为空
func (a *Area) Backing() string {
	if a.backing == nil {
		return ""
	}
	return a.backing.Type()
}

// Close 释放底层存储 (例如删除临时目录)
func (a *Area) Close() error {
	if a.backing == nil {
		return nil
	}
	var err error
	if c, ok := a.backing.(storage.Closer); ok {
		err = c.Close()
	}
	a.backing = nil
	if err != nil {
		return fmt.Errorf("close staging store: %w", err)
	}
	return nil
}

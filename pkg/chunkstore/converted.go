package chunkstore

import (
	"context"
	"fmt"

	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/storage"
)

// sourceBase 把已有的存储作为只读后备
// 前提: 在 Store 的生命周期内源存储不会被外部修改
type sourceBase struct {
	src storage.Store
}

// get 和 keys 一样只暴露 chunk，元数据 key 从数组的元数据存储读取
func (b *sourceBase) get(ctx context.Context, key string) ([]byte, error) {
	if chunkgrid.IsMetadataKey(key) {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	return b.src.Get(ctx, key)
}

func (b *sourceBase) keys(ctx context.Context) ([]string, error) {
	return chunkgrid.EnumeratePresent(ctx, b.src)
}

// NewConverted 用暂存区覆盖 src：未改写的 chunk 直接从 src 读取，不做预先拷贝
func NewConverted(src storage.Store, opts ...Option) *Store {
	return newStore(KindConverted, &sourceBase{src: src}, opts...)
}

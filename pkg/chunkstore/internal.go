package chunkstore

import (
	"zarrvault/pkg/storage"
	"zarrvault/pkg/zarr"
)

// kinded 由所有内部存储实现，用类型标记判断而不是比较具体类型
type kinded interface {
	Kind() Kind
}

// IsInternal 判断存储是否已经是内部存储
func IsInternal(s storage.Store) bool {
	k, ok := s.(kinded)
	if !ok {
		return false
	}
	switch k.Kind() {
	case KindInternal, KindConverted, KindRead:
		return true
	default:
		return false
	}
}

// ToInternal 把数组的 chunk 存储转换为内部存储
// 已经是内部存储时原样返回同一个数组 (以及同一个 *Store)
func ToInternal(arr *zarr.Array, opts ...Option) *zarr.Array {
	if IsInternal(arr.ChunkStore()) {
		return arr
	}
	return arr.WithChunkStore(NewConverted(arr.ChunkStore(), opts...))
}

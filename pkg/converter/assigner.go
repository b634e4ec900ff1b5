package converter

import (
	"context"
	"fmt"

	"zarrvault/pkg/blockmap"
	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/chunkstore"
	"zarrvault/pkg/container"
	"zarrvault/pkg/types"
	"zarrvault/pkg/zarr"
)

// BlockWriter 是容器写入端提供给 Assigner 的能力
// *container.Writer 实现了该接口
type BlockWriter interface {
	GenerateBlockKey() types.BlockKey
	FindOrCreateBlock(ctx context.Context, key types.BlockKey, produce container.Producer) (int, error)
}

var _ BlockWriter = (*container.Writer)(nil)

// assignment 记录一个 store 的 chunk key -> 稳定 key
type assignment struct {
	chunks map[string]types.BlockKey
	mapKey types.BlockKey
}

// Assigner 为内部存储的每个 chunk 申请 block 下标，并构建 chunk block map
// 同一个 store 的稳定 key 会被记住，重复保存时复用相同的 block
type Assigner struct {
	memo map[*chunkstore.Store]*assignment
}

func NewAssigner() *Assigner {
	return &Assigner{memo: make(map[*chunkstore.Store]*assignment)}
}

func (a *Assigner) lookup(s *chunkstore.Store) *assignment {
	as, ok := a.memo[s]
	if !ok {
		as = &assignment{chunks: make(map[string]types.BlockKey)}
		a.memo[s] = as
	}
	return as
}

// chunkKey 返回 chunk 的稳定 key: 先查缓存，再查加载时的 key，最后生成新的
func (as *assignment) chunkKey(s *chunkstore.Store, w BlockWriter, key string) types.BlockKey {
	if k, ok := as.chunks[key]; ok {
		return k
	}
	k, ok := s.ResolvedBlockKey(key)
	if !ok {
		k = w.GenerateBlockKey()
	}
	as.chunks[key] = k
	return k
}

func (as *assignment) mapBlockKey(s *chunkstore.Store, w BlockWriter) types.BlockKey {
	if !as.mapKey.IsZero() {
		return as.mapKey
	}
	k, ok := s.MapBlockKey()
	if !ok {
		k = w.GenerateBlockKey()
	}
	as.mapKey = k
	return k
}

// Assign 返回 chunk block map 所在的 block 下标以及构建出的 map
func (a *Assigner) Assign(ctx context.Context, arr *zarr.Array, w BlockWriter) (int, *blockmap.Map, error) {
	s, ok := arr.ChunkStore().(*chunkstore.Store)
	if !ok {
		return 0, nil, fmt.Errorf("array chunk store %s is not internal", arr.ChunkStore().Type())
	}
	meta := arr.Meta()
	as := a.lookup(s)

	// 1. 枚举当前存在的 chunk
	keys, err := chunkgrid.EnumeratePresent(ctx, s)
	if err != nil {
		return 0, nil, err
	}

	// 2. 每个 chunk 一个 block，数据在写文件时才读取
	m := blockmap.New(meta.GridShape())
	for _, key := range keys {
		coord, err := chunkgrid.DecodeN(key, meta.Separator(), len(meta.Shape))
		if err != nil {
			return 0, nil, err
		}
		produce := func(ctx context.Context) ([]byte, error) {
			return s.Get(ctx, key)
		}
		index, err := w.FindOrCreateBlock(ctx, as.chunkKey(s, w, key), produce)
		if err != nil {
			return 0, nil, fmt.Errorf("assign block for chunk %s: %w", key, err)
		}
		if err := m.Set(coord, index); err != nil {
			return 0, nil, fmt.Errorf("chunk %s: %w", key, err)
		}
	}

	// 3. map 本身也占一个 block
	mapBytes, err := m.MarshalBinary()
	if err != nil {
		return 0, nil, err
	}
	mapIndex, err := w.FindOrCreateBlock(ctx, as.mapBlockKey(s, w), func(context.Context) ([]byte, error) {
		return mapBytes, nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("assign block for chunk block map: %w", err)
	}
	return mapIndex, m, nil
}

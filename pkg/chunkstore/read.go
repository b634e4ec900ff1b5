package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"zarrvault/pkg/blockmap"
	"zarrvault/pkg/chunkgrid"
	"zarrvault/pkg/codec"
	"zarrvault/pkg/container"
	"zarrvault/pkg/storage"
	"zarrvault/pkg/types"
	"zarrvault/pkg/zarr"
)

// BlockResolver 把 block 下标解析为可移植的 BlockRef 和它的稳定 key
// *container.File 实现了该接口
type BlockResolver interface {
	ResolveBlock(ctx context.Context, index int) (container.BlockRef, types.BlockKey, error)
}

var _ BlockResolver = (*container.File)(nil)

// refBase 保存 key -> BlockRef，构造后不再修改
type refBase struct {
	refs     map[string]container.BlockRef
	claims   map[string]types.BlockKey
	mapClaim types.BlockKey
}

func (b *refBase) get(ctx context.Context, key string) ([]byte, error) {
	ref, ok := b.refs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	data, err := ref.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}
	return data, nil
}

func (b *refBase) keys(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(b.refs))
	for k := range b.refs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// NewRead 从 chunk block map 重建 key -> BlockRef 映射
func NewRead(ctx context.Context, meta *zarr.ArrayMeta, mapIndex int, resolver BlockResolver, opts ...Option) (*Store, error) {
	// 1. 读取并解码 map block
	mapRef, mapClaim, err := resolver.ResolveBlock(ctx, mapIndex)
	if err != nil {
		return nil, fmt.Errorf("resolve chunk block map: %w", err)
	}
	raw, err := mapRef.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chunk block map: %w", err)
	}
	m, err := blockmap.Decode(raw, meta.GridShape())
	if err != nil {
		return nil, err
	}

	// 2. 每个非 Missing 的 cell 恰好解析一次
	sep := meta.Separator()
	rb := &refBase{
		refs:     make(map[string]container.BlockRef, m.Present()),
		claims:   make(map[string]types.BlockKey, m.Present()),
		mapClaim: mapClaim,
	}
	err = m.Each(func(coord []int, index int) error {
		ref, claim, err := resolver.ResolveBlock(ctx, index)
		if err != nil {
			return fmt.Errorf("resolve chunk %v (block %d): %w", coord, index, err)
		}
		key := chunkgrid.Encode(coord, sep)
		rb.refs[key] = ref
		rb.claims[key] = claim
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. map 本身不保留
	slog.Debug("internal store loaded", slog.Int("chunks", len(rb.refs)), slog.Int("map_block", mapIndex))

	s := newStore(KindRead, rb, opts...)
	s.separator = sep
	return s, nil
}

// State 是读存储可移植的最小状态：只有 URI + 偏移，不含任何句柄
// 暂存区的写入不会被带走
type State struct {
	Separator string                        `cbor:"separator" json:"separator"`
	Chunks    map[string]container.BlockRef `cbor:"chunks" json:"chunks"`
	Claims    map[string]types.BlockKey     `cbor:"claims,omitempty" json:"claims,omitempty"`
	MapClaim  types.BlockKey                `cbor:"map_claim,omitempty" json:"map_claim,omitempty"`
}

// State 导出读存储的状态
func (s *Store) State() (State, error) {
	rb, ok := s.base.(*refBase)
	if !ok {
		return State{}, fmt.Errorf("%w: state of %s store", storage.ErrUnsupportedOperation, s.kind)
	}
	st := State{
		Separator: s.separator,
		Chunks:    make(map[string]container.BlockRef, len(rb.refs)),
		Claims:    make(map[string]types.BlockKey, len(rb.claims)),
		MapClaim:  rb.mapClaim,
	}
	for k, v := range rb.refs {
		st.Chunks[k] = v
	}
	for k, v := range rb.claims {
		if !v.IsZero() {
			st.Claims[k] = v
		}
	}
	return st, nil
}

// WithURI 把所有引用指向另一个 URI (例如远端 block 服务)
func (st State) WithURI(uri string) State {
	out := st
	out.Chunks = make(map[string]container.BlockRef, len(st.Chunks))
	for k, ref := range st.Chunks {
		out.Chunks[k] = container.BlockRef{URI: uri, Offset: ref.Offset}
	}
	return out
}

// MarshalBinary 使用规范化 CBOR
func (st State) MarshalBinary() ([]byte, error) {
	return codec.Marshal(st)
}

// UnmarshalBinary 解码 MarshalBinary 的输出
func (st *State) UnmarshalBinary(data []byte) error {
	return codec.Unmarshal(data, st)
}

// Restore 从状态重建读存储，暂存区和删除标记都是空的
func Restore(st State, opts ...Option) *Store {
	rb := &refBase{
		refs:     make(map[string]container.BlockRef, len(st.Chunks)),
		claims:   make(map[string]types.BlockKey, len(st.Claims)),
		mapClaim: st.MapClaim,
	}
	for k, v := range st.Chunks {
		rb.refs[k] = v
	}
	for k, v := range st.Claims {
		rb.claims[k] = v
	}
	s := newStore(KindRead, rb, opts...)
	if st.Separator != "" {
		s.separator = st.Separator
	}
	return s
}

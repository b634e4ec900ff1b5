// Package converter 负责数组与文档节点之间的转换
// 内部存储的数组变成 {".zarray", "chunk_block_map"}，外部存储的数组变成存储描述符
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zarrvault/pkg/chunkstore"
	"zarrvault/pkg/staging"
	"zarrvault/pkg/storage"
	"zarrvault/pkg/storage/disk"
	"zarrvault/pkg/storage/memory"
	"zarrvault/pkg/zarr"
)

// Class 是数组存储的分类
type Class int

const (
	// External 存储可以编码为描述符，不需要转换
	External Class = iota
	// ConvertedInternal 存储没有持久的生命周期，需要包装成内部存储
	ConvertedInternal
	// Internal 已经是内部存储
	Internal
	// ReadInternal 是从文档中加载的内部存储
	ReadInternal
)

func (c Class) String() string {
	switch c {
	case External:
		return "external"
	case ConvertedInternal:
		return "converted-internal"
	case Internal:
		return "internal"
	case ReadInternal:
		return "read-internal"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// 这些存储不会单独持久化，保存时必须转换为内部存储
var convertTypes = map[string]struct{}{
	memory.MemoryStoreType: {},
	memory.KVStoreType:     {},
	disk.TempStoreType:     {},
}

// Classify 判断数组的 chunk 存储属于哪一类
func Classify(arr *zarr.Array) Class {
	cs := arr.ChunkStore()
	if chunkstore.IsInternal(cs) {
		if s, ok := cs.(*chunkstore.Store); ok && s.Kind() == chunkstore.KindRead {
			return ReadInternal
		}
		return Internal
	}
	if _, ok := convertTypes[cs.Type()]; ok {
		return ConvertedInternal
	}
	return External
}

// Node 是数组在文档树中的节点
type Node struct {
	Meta          *zarr.ArrayMeta    `cbor:".zarray,omitempty" json:".zarray,omitempty"`
	ChunkBlockMap *int               `cbor:"chunk_block_map,omitempty" json:"chunk_block_map,omitempty"`
	Store         storage.Descriptor `cbor:"store,omitempty" json:"store,omitempty"`
	MetaStore     storage.Descriptor `cbor:"meta_store,omitempty" json:"meta_store,omitempty"`
}

// IsInternal 判断节点是否为内部存储
func (n *Node) IsInternal() bool { return n.ChunkBlockMap != nil }

var ErrInvalidNode = errors.New("invalid array node")

// Converter 持有跨多次保存的 Assigner
type Converter struct {
	assigner *Assigner
	opts     []chunkstore.Option
}

// Option 配置 Converter
type Option func(*Converter)

// WithStagingFactory 指定转换和加载出的内部存储使用的暂存区
func WithStagingFactory(f staging.Factory) Option {
	return func(c *Converter) {
		c.opts = append(c.opts, chunkstore.WithStagingFactory(f))
	}
}

func New(opts ...Option) *Converter {
	c := &Converter{assigner: NewAssigner()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToNode 把数组转换为文档节点
// 需要转换的数组会被包装为内部存储，返回的数组应当替换调用方手里的旧数组
func (c *Converter) ToNode(ctx context.Context, arr *zarr.Array, w BlockWriter) (*Node, *zarr.Array, error) {
	class := Classify(arr)
	slog.Debug("converting array", slog.String("class", class.String()), slog.String("store", arr.ChunkStore().Type()))

	switch class {
	case External:
		node, err := externalNode(arr)
		if err != nil {
			return nil, nil, err
		}
		return node, arr, nil
	case ConvertedInternal:
		arr = chunkstore.ToInternal(arr, c.opts...)
	}

	mapIndex, _, err := c.assigner.Assign(ctx, arr, w)
	if err != nil {
		return nil, nil, err
	}
	meta := *arr.Meta()
	return &Node{Meta: &meta, ChunkBlockMap: &mapIndex}, arr, nil
}

func externalNode(arr *zarr.Array) (*Node, error) {
	store, err := storage.Encode(arr.ChunkStore())
	if err != nil {
		return nil, err
	}
	node := &Node{Store: store}
	// 只有元数据和 chunk 分开存放时才写 meta_store
	if arr.HasSeparateChunkStore() {
		if node.MetaStore, err = storage.Encode(arr.Store()); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// FromNode 根据文档节点重建数组
func (c *Converter) FromNode(ctx context.Context, node *Node, resolver chunkstore.BlockResolver) (*zarr.Array, error) {
	if node.IsInternal() {
		if node.Meta == nil {
			return nil, fmt.Errorf("%w: internal node without %s", ErrInvalidNode, zarr.MetaKey)
		}
		if err := node.Meta.Validate(); err != nil {
			return nil, err
		}
		cs, err := chunkstore.NewRead(ctx, node.Meta, *node.ChunkBlockMap, resolver, c.opts...)
		if err != nil {
			return nil, err
		}
		// 元数据放在一个独立的 KVStore 里，chunk 走内部存储
		metaJSON, err := node.Meta.EncodeJSON()
		if err != nil {
			return nil, err
		}
		metaStore := memory.NewKVStore(map[string][]byte{zarr.MetaKey: metaJSON})
		return zarr.New(*node.Meta, metaStore, cs), nil
	}

	if node.Store == nil {
		return nil, fmt.Errorf("%w: neither chunk_block_map nor store", ErrInvalidNode)
	}
	store, err := storage.Decode(ctx, node.Store)
	if err != nil {
		return nil, err
	}
	metaStore := store
	if node.MetaStore != nil {
		if metaStore, err = storage.Decode(ctx, node.MetaStore); err != nil {
			return nil, err
		}
	}
	arr, err := zarr.Open(ctx, metaStore)
	if err != nil {
		return nil, err
	}
	if node.MetaStore != nil {
		arr = arr.WithChunkStore(store)
	}
	return arr, nil
}

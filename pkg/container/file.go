package container

import (
	"context"
	"encoding/binary"
	"fmt"

	"zarrvault/pkg/codec"
	"zarrvault/pkg/types"
)

// File 是一个已打开的容器的目录信息
// 只保留文档树和 block 索引表，block 数据在需要时按偏移单独读取
type File struct {
	uri     string
	tree    []byte
	entries []IndexEntry
}

// Open 解析容器的头部、文档树和 block 索引表
func Open(ctx context.Context, uri string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := LocalPath(uri)
	if err != nil {
		return nil, err
	}
	if uri, err = FileURI(path); err != nil {
		return nil, err
	}

	m, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer m.Close()
	data := []byte(m.data)

	// 1. 文件头
	if len(data) < HeaderSize+TrailerSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrNotContainer, len(data))
	}
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	treeEnd := uint64(HeaderSize) + h.TreeLen
	if treeEnd > uint64(len(data)-TrailerSize) {
		return nil, fmt.Errorf("%w: tree length %d out of range", ErrNotContainer, h.TreeLen)
	}

	// 2. 从尾部定位索引表
	t, err := decodeTrailer(data[len(data)-TrailerSize:])
	if err != nil {
		return nil, err
	}
	indexEnd := uint64(len(data) - TrailerSize)
	if t.IndexOffset < treeEnd || t.IndexOffset+8 > indexEnd {
		return nil, fmt.Errorf("%w: index offset %d out of range", ErrNotContainer, t.IndexOffset)
	}
	count := binary.LittleEndian.Uint64(data[t.IndexOffset:])
	if count > (indexEnd-t.IndexOffset-8)/IndexEntrySize {
		return nil, fmt.Errorf("%w: index claims %d blocks", ErrNotContainer, count)
	}

	entries := make([]IndexEntry, count)
	pos := t.IndexOffset + 8
	for i := range entries {
		if err := decodeFixed(data[pos:], IndexEntrySize, &entries[i]); err != nil {
			return nil, fmt.Errorf("%w: index entry %d: %v", ErrNotContainer, i, err)
		}
		pos += IndexEntrySize
	}

	// 3. 文档树拷贝出来，映射关闭后依然有效
	return &File{
		uri:     uri,
		tree:    append([]byte(nil), data[HeaderSize:treeEnd]...),
		entries: entries,
	}, nil
}

// URI 返回容器的绝对路径
func (f *File) URI() string { return f.uri }

// Tree 把文档树解码到 v
func (f *File) Tree(v any) error {
	return codec.Unmarshal(f.tree, v)
}

// RawTree 返回文档树的 CBOR 字节
func (f *File) RawTree() []byte { return append([]byte(nil), f.tree...) }

// NumBlocks 返回 block 数量
func (f *File) NumBlocks() int { return len(f.entries) }

func (f *File) entry(index int) (IndexEntry, error) {
	if index < 0 || index >= len(f.entries) {
		return IndexEntry{}, fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidBlock, index, len(f.entries))
	}
	return f.entries[index], nil
}

// ResolveBlock 把 block 下标解析为可移植的引用和它的稳定 key
func (f *File) ResolveBlock(ctx context.Context, index int) (BlockRef, types.BlockKey, error) {
	e, err := f.entry(index)
	if err != nil {
		return BlockRef{}, "", err
	}
	return BlockRef{URI: f.uri, Offset: int64(e.Offset)}, keyFromBytes(e.Key), nil
}

// ReadBlock 读取指定下标的 block
func (f *File) ReadBlock(ctx context.Context, index int) ([]byte, error) {
	ref, _, err := f.ResolveBlock(ctx, index)
	if err != nil {
		return nil, err
	}
	return ref.Read(ctx)
}

// Claims 返回 key -> 下标 的映射，供下一次写入复用
func (f *File) Claims() map[types.BlockKey]int {
	out := make(map[types.BlockKey]int, len(f.entries))
	for i, e := range f.entries {
		if k := keyFromBytes(e.Key); !k.IsZero() {
			out[k] = i
		}
	}
	return out
}

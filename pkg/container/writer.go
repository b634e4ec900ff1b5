package container

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zarrvault/pkg/codec"
	"zarrvault/pkg/types"
)

// Producer 在写文件时才被调用，返回 block 的完整数据
type Producer func(ctx context.Context) ([]byte, error)

type pendingBlock struct {
	key     types.BlockKey
	produce Producer
}

// Writer 收集 block 请求并一次性写出容器文件
// 不加锁：一次保存只在一个 goroutine 里进行
type Writer struct {
	compression string
	previous    map[types.BlockKey]int // 上一个文件里 key -> 下标
	next        int                    // 下一个新分配的下标
	claimed     map[types.BlockKey]int // 本次写入已经分配的 key
	blocks      map[int]pendingBlock
}

// WriterOption 配置 Writer
type WriterOption func(*Writer)

// WithPrevious 让相同 key 的 block 复用上一个文件中的下标
func WithPrevious(f *File) WriterOption {
	return func(w *Writer) {
		if f == nil {
			return
		}
		w.previous = f.Claims()
		// 新 key 只能排在旧文件所有下标之后，避免和旧 key 冲突
		w.next = f.NumBlocks()
	}
}

// WithCompression 设置 block 压缩算法 ("" 或 "zstd")
func WithCompression(name string) WriterOption {
	return func(w *Writer) { w.compression = name }
}

// NewWriter 创建 Writer
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		previous: map[types.BlockKey]int{},
		claimed:  map[types.BlockKey]int{},
		blocks:   map[int]pendingBlock{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// GenerateBlockKey 生成一个新的稳定 key
func (w *Writer) GenerateBlockKey() types.BlockKey {
	return types.NewBlockKey()
}

// FindOrCreateBlock 为 key 分配 block 下标
// 同一个 key 总是得到同一个下标：先查本次写入，再查上一个文件，最后才分配新的
func (w *Writer) FindOrCreateBlock(ctx context.Context, key types.BlockKey, produce Producer) (int, error) {
	if !key.IsValid() {
		return 0, fmt.Errorf("%w: invalid block key %q", ErrInvalidBlock, key)
	}
	if produce == nil {
		return 0, fmt.Errorf("%w: nil producer for key %s", ErrInvalidBlock, key)
	}

	index, ok := w.claimed[key]
	if !ok {
		if index, ok = w.previous[key]; !ok {
			index = w.next
			w.next++
		}
		w.claimed[key] = index
	}
	w.blocks[index] = pendingBlock{key: key, produce: produce}
	return index, nil
}

// NumBlocks 返回写出时的 block 数量 (包括占位的空 block)
func (w *Writer) NumBlocks() int {
	n := 0
	for i := range w.blocks {
		n = max(n, i+1)
	}
	return n
}

// WriteFile 把文档树和所有 block 写到 path
// 先写临时文件再 rename，写入过程中旧文件依然可读
func (w *Writer) WriteFile(ctx context.Context, path string, tree any) (err error) {
	if !ValidCompression(w.compression) {
		return fmt.Errorf("unsupported compression %q", w.compression)
	}
	treeBytes, err := codec.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode document tree: %w", err)
	}

	// 1. 临时文件与目标在同一目录，保证 rename 是原子的
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".zv-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return err
	}

	bw := bufio.NewWriter(tmp)
	cw := &countingWriter{w: bw}

	// 2. 文件头 + 文档树
	header, err := EncodeHeader(len(treeBytes))
	if err != nil {
		return err
	}
	if _, err = cw.Write(header); err != nil {
		return err
	}
	if _, err = cw.Write(treeBytes); err != nil {
		return err
	}

	// 3. 按下标顺序写出 block，没有被认领的下标写空的占位 block
	n := w.NumBlocks()
	entries := make([]IndexEntry, n)
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		var data []byte
		pb, ok := w.blocks[i]
		if ok {
			if data, err = pb.produce(ctx); err != nil {
				return fmt.Errorf("produce block %d: %w", i, err)
			}
			entries[i].Key = keyBytes(pb.key)
		}
		entries[i].Offset = uint64(cw.n)
		if err = w.writeBlock(cw, data); err != nil {
			return fmt.Errorf("write block %d: %w", i, err)
		}
	}

	// 4. 索引表 + 尾部
	indexOffset := cw.n
	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], uint64(n))
	if _, err = cw.Write(count[:]); err != nil {
		return err
	}
	for i := range entries {
		var raw []byte
		if raw, err = encodeFixed(&entries[i], IndexEntrySize); err != nil {
			return err
		}
		if _, err = cw.Write(raw); err != nil {
			return err
		}
	}
	trailer, err := encodeTrailer(indexOffset)
	if err != nil {
		return err
	}
	if _, err = cw.Write(trailer); err != nil {
		return err
	}

	// 5. 落盘并替换
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	slog.Debug("container written",
		slog.String("path", path),
		slog.Int("blocks", n),
		slog.Int64("bytes", cw.n),
	)
	return nil
}

func (w *Writer) writeBlock(cw *countingWriter, data []byte) error {
	if len(data) > MaxBlockSize {
		return fmt.Errorf("%w: %d bytes exceeds the block size limit", ErrInvalidBlock, len(data))
	}
	payload, algo, err := compress(w.compression, data)
	if err != nil {
		return err
	}
	h := BlockHeader{
		UsedSize: uint64(len(payload)),
		DataSize: uint64(len(data)),
		Checksum: sha256.Sum256(data),
	}
	copy(h.Compression[:], algo)
	raw, err := encodeBlockHeader(&h)
	if err != nil {
		return err
	}
	if _, err := cw.Write(raw); err != nil {
		return err
	}
	_, err = cw.Write(payload)
	return err
}

type countingWriter struct {
	w interface{ Write([]byte) (int, error) }
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

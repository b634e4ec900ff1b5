package container

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// BlockRef 是一个 block 的可移植引用：容器 URI + block 头所在的字节偏移
// 它只保存数据，不持有任何打开的句柄，可以安全地序列化后在别的进程中重建
type BlockRef struct {
	URI    string `cbor:"uri" json:"uri"`
	Offset int64  `cbor:"offset" json:"offset"`
}

// Read 读取该 block 的完整 (解压后) 数据
func (r BlockRef) Read(ctx context.Context) ([]byte, error) {
	return ReadBlock(ctx, r.URI, r.Offset)
}

// SchemeReader 按 URI 和偏移读取一个 block
type SchemeReader func(ctx context.Context, uri string, offset int64) ([]byte, error)

var (
	schemeMu sync.RWMutex
	schemes  = map[string]SchemeReader{
		"file": readLocalBlock,
	}
)

// RegisterScheme 注册一个 URI scheme 的读取实现 (例如 "grpc")
func RegisterScheme(scheme string, fn SchemeReader) {
	schemeMu.Lock()
	defer schemeMu.Unlock()
	schemes[scheme] = fn
}

// splitURI 拆出 scheme，没有 scheme 的 URI 视为本地路径
func splitURI(uri string) (scheme, rest string) {
	if i := strings.Index(uri, "://"); i > 0 {
		return uri[:i], uri[i+3:]
	}
	return "file", uri
}

// LocalPath 返回本地容器 URI 对应的文件路径
func LocalPath(uri string) (string, error) {
	scheme, rest := splitURI(uri)
	if scheme != "file" {
		return "", fmt.Errorf("uri %q is not a local file", uri)
	}
	return rest, nil
}

// FileURI 把路径转成绝对路径形式的 URI
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// ReadBlock 按 URI + 偏移读取一个 block
// 每次调用都重新打开容器并在返回前释放
func ReadBlock(ctx context.Context, uri string, offset int64) ([]byte, error) {
	scheme, _ := splitURI(uri)
	schemeMu.RLock()
	fn, ok := schemes[scheme]
	schemeMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no block reader registered for scheme %q", scheme)
	}
	return fn(ctx, uri, offset)
}

// mappedFile 是一个只读映射的文件
type mappedFile struct {
	f    *os.File
	data mmap.MMap
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mappedFile{f: f, data: m}, nil
}

func (m *mappedFile) Close() error {
	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			m.f.Close()
			return err
		}
		m.data = nil
	}
	return m.f.Close()
}

func readLocalBlock(ctx context.Context, uri string, offset int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := LocalPath(uri)
	if err != nil {
		return nil, err
	}
	m, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer m.Close()
	return decodeBlockAt(m.data, offset)
}

// decodeBlockAt 解析 offset 处的 block，校验后返回数据的拷贝
func decodeBlockAt(data []byte, offset int64) ([]byte, error) {
	// 先减后比，offset 接近 MaxInt64 时相加会溢出
	if offset < HeaderSize || offset > int64(len(data))-BlockHeaderSize {
		return nil, fmt.Errorf("%w: offset %d out of range", ErrInvalidBlock, offset)
	}
	h, err := decodeBlockHeader(data[offset:])
	if err != nil {
		return nil, err
	}
	if h.DataSize > MaxBlockSize {
		return nil, fmt.Errorf("%w: block at %d claims %d bytes", ErrInvalidBlock, offset, h.DataSize)
	}
	start := offset + BlockHeaderSize
	if h.UsedSize > uint64(int64(len(data))-start) {
		return nil, fmt.Errorf("%w: block at %d is truncated", ErrInvalidBlock, offset)
	}
	payload := data[start : start+int64(h.UsedSize)]

	out, err := decompress(compressionName(h.Compression), payload, h.DataSize)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != h.DataSize {
		return nil, fmt.Errorf("%w: block at %d has %d bytes, header says %d", ErrInvalidBlock, offset, len(out), h.DataSize)
	}
	if sha256.Sum256(out) != h.Checksum {
		return nil, fmt.Errorf("%w: block at %d", ErrChecksum, offset)
	}
	return out, nil
}

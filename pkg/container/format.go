package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"zarrvault/pkg/types"

	"github.com/google/uuid"
)

// 文件布局 (全部小端序):
//
//	[Header 32B][CBOR tree][Block 0]...[Block N-1][Index][Trailer 16B]
//
// Block  = [BlockHeader 64B][payload UsedSize B]
// Index  = [count uint64][count x IndexEntry]
// 末尾的 Trailer 记录 Index 的位置，读取时从文件尾部开始定位
const (
	HeaderSize      = 32
	BlockHeaderSize = 64
	IndexEntrySize  = 24
	TrailerSize     = 16

	Magic        = "ZVLT"
	BlockMagic   = "ZBLK"
	TrailerMagic = "ZIDX"

	FormatVersion uint16 = 1

	// MaxBlockSize 是单个 block 解压后的上限，也是 block 服务单条消息的上限
	MaxBlockSize = 1 << 30
)

var (
	ErrNotContainer = errors.New("not a container file")
	ErrInvalidBlock = errors.New("invalid block")
	ErrChecksum     = errors.New("block checksum mismatch")
)

// Header 是文件头
type Header struct {
	Magic    [4]byte
	Version  uint16
	Flags    uint16
	TreeLen  uint64
	Reserved [16]byte
}

// BlockHeader 是每个 block 的自描述头
type BlockHeader struct {
	Magic       [4]byte
	Flags       uint16
	_           uint16
	Compression [4]byte  // "zstd" 或全 0
	UsedSize    uint64   // payload 实际占用的字节数 (压缩后)
	DataSize    uint64   // 解压后的字节数
	Checksum    [32]byte // 解压后数据的 SHA-256
	Reserved    [4]byte
}

// IndexEntry 是 block 索引表的一项
type IndexEntry struct {
	Offset uint64
	Key    [16]byte // block 的稳定 key (UUID)，全 0 表示没有
}

// Trailer 位于文件末尾
type Trailer struct {
	IndexOffset uint64
	Magic       [4]byte
	Reserved    [4]byte
}

func encodeFixed(v any, size int) ([]byte, error) {
	var w bytes.Buffer
	w.Grow(size)
	if err := binary.Write(&w, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	if w.Len() != size {
		return nil, fmt.Errorf("encoded %T is %d bytes, want %d", v, w.Len(), size)
	}
	return w.Bytes(), nil
}

func decodeFixed(src []byte, size int, v any) error {
	if len(src) < size {
		return fmt.Errorf("need %d bytes, have %d", size, len(src))
	}
	return binary.Read(bytes.NewReader(src[:size]), binary.LittleEndian, v)
}

// EncodeHeader 写入文件头
func EncodeHeader(treeLen int) ([]byte, error) {
	h := Header{Version: FormatVersion, TreeLen: uint64(treeLen)}
	copy(h.Magic[:], Magic)
	return encodeFixed(&h, HeaderSize)
}

// DecodeHeader 校验 magic 和版本
func DecodeHeader(src []byte) (*Header, error) {
	var h Header
	if err := decodeFixed(src, HeaderSize, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrNotContainer, h.Magic[:])
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrNotContainer, h.Version)
	}
	return &h, nil
}

func encodeBlockHeader(h *BlockHeader) ([]byte, error) {
	copy(h.Magic[:], BlockMagic)
	return encodeFixed(h, BlockHeaderSize)
}

func decodeBlockHeader(src []byte) (*BlockHeader, error) {
	var h BlockHeader
	if err := decodeFixed(src, BlockHeaderSize, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if string(h.Magic[:]) != BlockMagic {
		return nil, fmt.Errorf("%w: bad block magic %q", ErrInvalidBlock, h.Magic[:])
	}
	return &h, nil
}

func encodeTrailer(indexOffset int64) ([]byte, error) {
	t := Trailer{IndexOffset: uint64(indexOffset)}
	copy(t.Magic[:], TrailerMagic)
	return encodeFixed(&t, TrailerSize)
}

func decodeTrailer(src []byte) (*Trailer, error) {
	var t Trailer
	if err := decodeFixed(src, TrailerSize, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	if string(t.Magic[:]) != TrailerMagic {
		return nil, fmt.Errorf("%w: bad trailer magic %q", ErrNotContainer, t.Magic[:])
	}
	return &t, nil
}

// compressionName 把定长字段还原为算法名
func compressionName(c [4]byte) string {
	return string(bytes.TrimRight(c[:], "\x00"))
}

// keyBytes 把 BlockKey 压缩成 16 字节，空 key 为全 0
func keyBytes(k types.BlockKey) [16]byte {
	var out [16]byte
	if k.IsZero() {
		return out
	}
	if id, err := uuid.Parse(k.String()); err == nil {
		out = id
	}
	return out
}

func keyFromBytes(b [16]byte) types.BlockKey {
	if b == ([16]byte{}) {
		return ""
	}
	return types.BlockKey(uuid.UUID(b).String())
}

package container

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionZstd 是目前唯一支持的 block 压缩算法
const CompressionZstd = "zstd"

// EncodeAll / DecodeAll 在同一个实例上并发调用是安全的，全局复用
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBlockSize))
	})
)

// maxPrealloc 限制按 block 头预分配的容量，头部被篡改时不会一次申请巨量内存
const maxPrealloc = 4 << 20

// compress 返回压缩后的数据；压缩无收益时返回原数据和空算法名
func compress(name string, data []byte) ([]byte, string, error) {
	switch name {
	case "":
		return data, "", nil
	case CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, "", fmt.Errorf("init zstd encoder: %w", err)
		}
		out := enc.EncodeAll(data, make([]byte, 0, len(data)))
		if len(out) >= len(data) {
			return data, "", nil
		}
		return out, CompressionZstd, nil
	default:
		return nil, "", fmt.Errorf("unsupported compression %q", name)
	}
}

func decompress(name string, payload []byte, dataSize uint64) ([]byte, error) {
	switch name {
	case "":
		return append([]byte(nil), payload...), nil
	case CompressionZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("init zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(payload, make([]byte, 0, min(dataSize, maxPrealloc)))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrInvalidBlock, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", ErrInvalidBlock, name)
	}
}

// ValidCompression 检查配置中的压缩算法名
func ValidCompression(name string) bool {
	return name == "" || name == CompressionZstd
}

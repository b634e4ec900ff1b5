// Package chunkgrid 负责 chunk 坐标与 chunk key 之间的互相转换
// 以及按行主序 (最后一维变化最快) 枚举整个 chunk 网格
package chunkgrid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"zarrvault/pkg/storage"
)

// DefaultSeparator 是 zarr v2 默认的维度分隔符
const DefaultSeparator = "."

// ScalarKey 是 0 维数组唯一的 chunk key
const ScalarKey = "0"

// ErrMalformedKey 表示 key 无法解析为坐标
var ErrMalformedKey = errors.New("malformed chunk key")

// metadataKeys 是 zarr 的元数据 key，不属于 chunk
var metadataKeys = map[string]struct{}{
	".zarray":    {},
	".zattrs":    {},
	".zgroup":    {},
	".zmetadata": {},
}

// IsMetadataKey 判断 key 是否为元数据 key
func IsMetadataKey(key string) bool {
	_, ok := metadataKeys[key]
	return ok
}

// GridShape 计算每一维的 chunk 数量: ceil(shape / chunks)
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		if chunks[i] <= 0 {
			continue
		}
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// Size 返回网格中的 cell 总数 (0 维网格为 1)
func Size(grid []int) int {
	n := 1
	for _, g := range grid {
		n *= g
	}
	return n
}

// Encode 把坐标编码为 key
func Encode(coord []int, sep string) string {
	if len(coord) == 0 {
		return ScalarKey
	}
	if sep == "" {
		sep = DefaultSeparator
	}
	parts := make([]string, len(coord))
	for i, c := range coord {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, sep)
}

// Decode 把 key 解析为坐标
// 只负责解析，维度是否匹配由调用方检查 (见 DecodeN)
func Decode(key, sep string) ([]int, error) {
	if sep == "" {
		sep = DefaultSeparator
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrMalformedKey)
	}
	parts := strings.Split(key, sep)
	coord := make([]int, len(parts))
	for i, p := range parts {
		// 只接受非负的十进制整数，拒绝 "+1"、"-1" 这类写法
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedKey, key, err)
		}
		coord[i] = n
	}
	return coord, nil
}

// DecodeN 解析 key 并检查维度数
func DecodeN(key, sep string, ndim int) ([]int, error) {
	if ndim == 0 {
		if key != ScalarKey {
			return nil, fmt.Errorf("%w: %q is not a scalar key", ErrMalformedKey, key)
		}
		return []int{}, nil
	}
	coord, err := Decode(key, sep)
	if err != nil {
		return nil, err
	}
	if len(coord) != ndim {
		return nil, fmt.Errorf("%w: %q has %d dimensions, want %d", ErrMalformedKey, key, len(coord), ndim)
	}
	return coord, nil
}

// EachCoord 按行主序遍历网格中的每个坐标
// fn 返回 false 时提前结束；传给 fn 的切片会被复用，需要保留时请拷贝
func EachCoord(grid []int, fn func(coord []int) bool) {
	for _, g := range grid {
		if g <= 0 {
			return
		}
	}
	coord := make([]int, len(grid))
	for {
		if !fn(coord) {
			return
		}
		// 最后一维进位
		i := len(grid) - 1
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < grid[i] {
				break
			}
			coord[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// Enumerate 列出网格中所有的 key (不管 chunk 是否存在)
func Enumerate(shape, chunks []int, sep string) []string {
	grid := GridShape(shape, chunks)
	keys := make([]string, 0, Size(grid))
	EachCoord(grid, func(coord []int) bool {
		keys = append(keys, Encode(coord, sep))
		return true
	})
	return keys
}

// EnumeratePresent 列出存储中当前存在的 chunk key (排除元数据 key)
func EnumeratePresent(ctx context.Context, store storage.Store) ([]string, error) {
	all, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk keys: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if IsMetadataKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Package blockmap 实现 chunk block map：
// 一个与 chunk 网格同形状的 int32 数组，每个 cell 记录该 chunk 所在的 block 下标
package blockmap

import (
	"encoding/binary"
	"fmt"

	"zarrvault/pkg/chunkgrid"
)

// Missing 表示该 chunk 不存在
const Missing int32 = -1

const cellSize = 4

// Map 是按行主序平铺的 int32 缓冲区，附带显式形状
type Map struct {
	shape []int
	cells []int32
}

// New 创建一个全部填充 Missing 的 Map
func New(shape []int) *Map {
	cells := make([]int32, chunkgrid.Size(shape))
	for i := range cells {
		cells[i] = Missing
	}
	return &Map{shape: append([]int(nil), shape...), cells: cells}
}

// Shape 返回网格形状
func (m *Map) Shape() []int { return append([]int(nil), m.shape...) }

// Len 返回 cell 总数
func (m *Map) Len() int { return len(m.cells) }

// offset 把坐标换算为平铺下标 (行主序)
func (m *Map) offset(coord []int) (int, error) {
	if len(coord) != len(m.shape) {
		return 0, fmt.Errorf("coordinate %v has %d dimensions, map has %d", coord, len(coord), len(m.shape))
	}
	off := 0
	for i, c := range coord {
		if c < 0 || c >= m.shape[i] {
			return 0, fmt.Errorf("coordinate %v out of range for shape %v", coord, m.shape)
		}
		off = off*m.shape[i] + c
	}
	return off, nil
}

// Set 设置某个坐标的 block 下标
func (m *Map) Set(coord []int, index int) error {
	off, err := m.offset(coord)
	if err != nil {
		return err
	}
	if index < 0 || int64(index) > int64(^uint32(0)>>1) {
		return fmt.Errorf("block index %d does not fit in int32", index)
	}
	m.cells[off] = int32(index)
	return nil
}

// At 读取某个坐标的值 (Missing 或 block 下标)
func (m *Map) At(coord []int) (int32, error) {
	off, err := m.offset(coord)
	if err != nil {
		return Missing, err
	}
	return m.cells[off], nil
}

// Each 按行主序遍历所有非 Missing 的 cell
func (m *Map) Each(fn func(coord []int, index int) error) error {
	var err error
	i := 0
	chunkgrid.EachCoord(m.shape, func(coord []int) bool {
		v := m.cells[i]
		i++
		if v == Missing {
			return true
		}
		err = fn(coord, int(v))
		return err == nil
	})
	return err
}

// Present 返回非 Missing 的 cell 数量
func (m *Map) Present() int {
	n := 0
	for _, v := range m.cells {
		if v != Missing {
			n++
		}
	}
	return n
}

// MarshalBinary 输出本机字节序的 int32 平铺数组
func (m *Map) MarshalBinary() ([]byte, error) {
	buf := make([]byte, len(m.cells)*cellSize)
	for i, v := range m.cells {
		binary.NativeEndian.PutUint32(buf[i*cellSize:], uint32(v))
	}
	return buf, nil
}

// Decode 把字节重新整形为 shape 形状的 Map
func Decode(data []byte, shape []int) (*Map, error) {
	n := chunkgrid.Size(shape)
	if len(data) != n*cellSize {
		return nil, fmt.Errorf("chunk block map has %d bytes, want %d for shape %v", len(data), n*cellSize, shape)
	}
	m := &Map{shape: append([]int(nil), shape...), cells: make([]int32, n)}
	for i := range m.cells {
		v := int32(binary.NativeEndian.Uint32(data[i*cellSize:]))
		if v < Missing {
			return nil, fmt.Errorf("chunk block map cell %d has invalid value %d", i, v)
		}
		m.cells[i] = v
	}
	return m, nil
}

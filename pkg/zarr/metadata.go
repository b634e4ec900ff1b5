package zarr

import (
	"encoding/json"
	"errors"
	"fmt"

	"zarrvault/pkg/chunkgrid"
)

const (
	// MetaKey 是数组元数据在 store 中的 key
	MetaKey = ".zarray"
	// AttrsKey 存储用户自定义属性
	AttrsKey = ".zattrs"
	// FormatVersion 是支持的 zarr 存储格式版本
	FormatVersion = 2
)

var ErrInvalidMeta = errors.New("invalid array metadata")

// ArrayMeta 是 ".zarray" 的内容 (zarr v2)
// 同时带 json 和 cbor tag：在 store 里是 JSON，在容器文档树里是 CBOR
type ArrayMeta struct {
	ZarrFormat int              `json:"zarr_format" cbor:"zarr_format"`
	Shape      []int            `json:"shape" cbor:"shape"`
	Chunks     []int            `json:"chunks" cbor:"chunks"`
	Dtype      string           `json:"dtype" cbor:"dtype"`
	Compressor map[string]any   `json:"compressor" cbor:"compressor"`
	FillValue  any              `json:"fill_value" cbor:"fill_value"`
	Order      string           `json:"order" cbor:"order"`
	Filters    []map[string]any `json:"filters" cbor:"filters"`

	// 可选字段，为空时按 "." 处理
	DimensionSeparator string `json:"dimension_separator,omitempty" cbor:"dimension_separator,omitempty"`
}

// Separator 返回 chunk key 的维度分隔符
func (m *ArrayMeta) Separator() string {
	if m.DimensionSeparator == "" {
		return chunkgrid.DefaultSeparator
	}
	return m.DimensionSeparator
}

// GridShape 返回 chunk 网格形状 (cdata_shape)
func (m *ArrayMeta) GridShape() []int {
	return chunkgrid.GridShape(m.Shape, m.Chunks)
}

// Validate 检查元数据是否自洽
func (m *ArrayMeta) Validate() error {
	if m.ZarrFormat != FormatVersion {
		return fmt.Errorf("%w: unsupported zarr_format %d", ErrInvalidMeta, m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("%w: shape %v and chunks %v differ in length", ErrInvalidMeta, m.Shape, m.Chunks)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("%w: bad dimension %d (shape %d, chunk %d)", ErrInvalidMeta, i, m.Shape[i], m.Chunks[i])
		}
	}
	switch m.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("%w: dimension_separator %q", ErrInvalidMeta, m.DimensionSeparator)
	}
	if m.Order != "" && m.Order != "C" && m.Order != "F" {
		return fmt.Errorf("%w: order %q", ErrInvalidMeta, m.Order)
	}
	return nil
}

// EncodeJSON 输出写入 store 的 JSON 形式
func (m *ArrayMeta) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "    ")
}

// DecodeMeta 解析 ".zarray" 的 JSON 内容
func DecodeMeta(data []byte) (*ArrayMeta, error) {
	var m ArrayMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// TypeStringKey 是描述符中标识存储类型的字段
const TypeStringKey = "type_string"

// Descriptor 是外部存储在文档树中的编码形式
// 例如: {"type_string": "DirectoryStore", "path": "/data/arr.zarr", "normalize_keys": false}
type Descriptor map[string]any

// Describer 由可以被编码进文档的存储实现
type Describer interface {
	Describe() (Descriptor, error)
}

// DecodeFunc 根据描述符重建一个存储实例
type DecodeFunc func(ctx context.Context, d Descriptor) (Store, error)

var (
	registryMu sync.RWMutex
	decoders   = map[string]DecodeFunc{}
)

// RegisterDecoder 注册一种存储类型的解码器
// 由各个适配器包在 init() 中调用，类似 database/sql 的驱动注册
func RegisterDecoder(typeString string, fn DecodeFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	decoders[typeString] = fn
}

// RegisteredTypes 返回所有已注册的类型名 (排序)
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Encode 把存储编码为描述符
// 不支持的存储类型返回 ErrUnsupportedStore
func Encode(s Store) (Descriptor, error) {
	d, ok := s.(Describer)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be encoded", ErrUnsupportedStore, s.Type())
	}
	desc, err := d.Describe()
	if err != nil {
		return nil, err
	}
	desc[TypeStringKey] = s.Type()
	return desc, nil
}

// Decode 根据描述符重建存储
func Decode(ctx context.Context, d Descriptor) (Store, error) {
	typeString, err := d.String(TypeStringKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedStore, err)
	}

	registryMu.RLock()
	fn, ok := decoders[typeString]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, typeString)
	}
	return fn(ctx, d)
}

// --- 字段读取辅助函数 ---
// CBOR 解码后的数字可能是 uint64/int64，这里统一处理

// String 读取必填的字符串字段
func (d Descriptor) String(key string) (string, error) {
	v, ok := d[key]
	if !ok {
		return "", fmt.Errorf("descriptor missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("descriptor field %q must be a string, got %T", key, v)
	}
	return s, nil
}

// StringOr 读取可选的字符串字段
func (d Descriptor) StringOr(key, def string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return def
}

// Bool 读取可选的布尔字段
func (d Descriptor) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Int 读取可选的整数字段
func (d Descriptor) Int(key string, def int64) int64 {
	switch n := d[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return def
	}
}

// Sub 读取嵌套的描述符 (例如 CachedStore 的 backend)
func (d Descriptor) Sub(key string) (Descriptor, error) {
	switch m := d[key].(type) {
	case Descriptor:
		return m, nil
	case map[string]any:
		return Descriptor(m), nil
	case nil:
		return nil, fmt.Errorf("descriptor missing field %q", key)
	default:
		return nil, fmt.Errorf("descriptor field %q must be a map, got %T", key, m)
	}
}

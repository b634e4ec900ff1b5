// Package codec 提供全局统一的规范化 CBOR 编解码
// 容器文档树、chunkstore.State 都走这里，保证相同的值总是得到相同的字节
package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"

	"zarrvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 规范化编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的文档生成相同的字节
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用64位表示 (fill_value 可能是浮点)
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// KVStore 描述符会把所有 chunk 内联进文档，因此上限比普通对象宽松
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      1 << 20,
	MaxNestedLevels:  64,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,

	// 解码到 any 时使用 map[string]any，而不是 map[any]any
	// 这样描述符可以直接转成 storage.Descriptor
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}

var dm, _ = decOptions.DecMode()

// Marshal 规范化编码
func Marshal(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cbor: %w", err)
	}
	return data, nil
}

// Unmarshal 严格解码
func Unmarshal(data []byte, v any) error {
	if err := dm.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal cbor: %w", err)
	}
	return nil
}

// Sum 计算数据的 SHA-256 摘要
func Sum(data []byte) types.Hash {
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

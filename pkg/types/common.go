// pkg/types/common.go
package types

import "github.com/google/uuid"

// Hash 代表块内容的 SHA256 Hex String
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// BlockKey 是容器写入器分配给一个块的稳定身份
// 同一个 BlockKey 在重新保存时会复用同一个块索引
type BlockKey string

// NewBlockKey 生成一个新的随机 BlockKey (UUID v4)
func NewBlockKey() BlockKey { return BlockKey(uuid.NewString()) }

func (k BlockKey) String() string { return string(k) }
func (k BlockKey) IsZero() bool   { return k == "" }

// IsValid 检查是否是合法的 UUID 格式
func (k BlockKey) IsValid() bool {
	_, err := uuid.Parse(string(k))
	return err == nil
}

// BlockIndex 是块在容器块表中的位置
type BlockIndex = int

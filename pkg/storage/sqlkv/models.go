package sqlkv

import "time"

// Entry 是一个 chunk 在关系型数据库中的行
// 多个数组可以共享一张表，用 Namespace 隔离
type Entry struct {
	Namespace string `gorm:"primaryKey;type:varchar(255)"`
	Key       string `gorm:"primaryKey;column:chunk_key;type:varchar(255)"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName 强制指定表名
func (Entry) TableName() string {
	return "zv_chunks"
}

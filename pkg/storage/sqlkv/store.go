package sqlkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zarrvault/pkg/storage"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const SQLStoreType = "SQLStore"

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Config 数据库配置
type Config struct {
	Dialect   string // "sqlite" 或 "postgres"
	DSN       string // sqlite 文件路径 / postgres 连接串
	Namespace string // 同一张表中区分不同数组
}

// SQLStore 把 chunk 存成 SQL 表中的行
type SQLStore struct {
	conn *gorm.DB
	cfg  Config
}

var (
	_ storage.Store     = (*SQLStore)(nil)
	_ storage.Describer = (*SQLStore)(nil)
	_ storage.Closer    = (*SQLStore)(nil)
)

// Open 初始化数据库连接并迁移表结构
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", cfg.Dialect)
	}

	// 使用 GORM 打开连接
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层 sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 验证连接是否存活
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return NewWithConn(db, cfg)
}

// NewWithConn 允许使用现有的 GORM 连接初始化 Store
// 这对于依赖注入、复用连接池或单元测试非常有用
func NewWithConn(conn *gorm.DB, cfg Config) (*SQLStore, error) {
	// 自动迁移表结构
	if err := conn.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return &SQLStore{conn: conn, cfg: cfg}, nil
}

func (s *SQLStore) Type() string { return SQLStoreType }

func (s *SQLStore) scoped(ctx context.Context) *gorm.DB {
	return s.conn.WithContext(ctx).Where("namespace = ?", s.cfg.Namespace)
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	err := s.scoped(ctx).Where("chunk_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sql get failed: %w", err)
	}
	return entry.Value, nil
}

// Set 幂等写入：主键冲突时覆盖旧值 (Upsert)
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	entry := Entry{
		Namespace: s.cfg.Namespace,
		Key:       key,
		Value:     append([]byte(nil), value...),
	}
	err := s.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "chunk_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("sql set failed: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.conn.WithContext(ctx).
		Where("namespace = ? AND chunk_key = ?", s.cfg.Namespace, key).
		Delete(&Entry{}).Error
	if err != nil {
		return fmt.Errorf("sql delete failed: %w", err)
	}
	return nil
}

func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.scoped(ctx).Model(&Entry{}).Order("chunk_key").Pluck("chunk_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("sql list failed: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) Describe() (storage.Descriptor, error) {
	return storage.Descriptor{
		"dialect":   s.cfg.Dialect,
		"dsn":       s.cfg.DSN,
		"namespace": s.cfg.Namespace,
	}, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decodeSQLStore(ctx context.Context, d storage.Descriptor) (storage.Store, error) {
	dialect, err := d.String("dialect")
	if err != nil {
		return nil, err
	}
	dsn, err := d.String("dsn")
	if err != nil {
		return nil, err
	}
	return Open(ctx, Config{
		Dialect:   dialect,
		DSN:       dsn,
		Namespace: d.StringOr("namespace", ""),
	})
}

func init() {
	storage.RegisterDecoder(SQLStoreType, decodeSQLStore)
}

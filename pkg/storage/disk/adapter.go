package disk

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zarrvault/pkg/ignore"
	"zarrvault/pkg/storage"
)

const (
	DirectoryStoreType = "DirectoryStore"
	TempStoreType      = "TempStore"
)

// DirectoryStore 实现了 storage.Store 接口
// 每个 key 对应根目录下的一个文件，key 中的 "/" 会变成子目录
type DirectoryStore struct {
	rootPath      string // 比如: /data/arr.zarr
	normalizeKeys bool   // 是否把 key 统一转成小写 (大小写不敏感的文件系统)
	matcher       *ignore.Matcher
}

var (
	_ storage.Store     = (*DirectoryStore)(nil)
	_ storage.Describer = (*DirectoryStore)(nil)
)

// NewDirectoryStore 创建一个新的目录存储
func NewDirectoryStore(root string, normalizeKeys bool) (*DirectoryStore, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	return &DirectoryStore{rootPath: root, normalizeKeys: normalizeKeys, matcher: matcher}, nil
}

func (s *DirectoryStore) Type() string { return DirectoryStoreType }

// Path 返回根目录
func (s *DirectoryStore) Path() string { return s.rootPath }

func (s *DirectoryStore) normalize(key string) string {
	if s.normalizeKeys {
		return strings.ToLower(key)
	}
	return key
}

// layout 返回 key 对应的物理路径
func (s *DirectoryStore) layout(key string) (string, error) {
	key = s.normalize(key)
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.rootPath, clean), nil
}

func (s *DirectoryStore) Set(ctx context.Context, key string, value []byte) error {
	targetPath, err := s.layout(key)
	if err != nil {
		return err
	}

	// 1. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入 (Atomic Write)
	// 先写到一个临时文件，然后 Rename。
	// 这样保证要么文件不存在，要么文件是完整的。
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(value); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil { // 必须先关闭才能 Rename
		return err
	}

	// 3. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *DirectoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	targetPath, err := s.layout(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}

	data, err := os.ReadFile(targetPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DirectoryStore) Delete(ctx context.Context, key string) error {
	targetPath, err := s.layout(key)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	err = os.Remove(targetPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Keys 遍历根目录，返回所有文件的相对路径 (以 "/" 分隔)
func (s *DirectoryStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.rootPath {
			return nil
		}
		rel, err := filepath.Rel(s.rootPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if s.matcher.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		keys = append(keys, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.rootPath, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *DirectoryStore) Describe() (storage.Descriptor, error) {
	return storage.Descriptor{
		"path":           s.rootPath,
		"normalize_keys": s.normalizeKeys,
	}, nil
}

func decodeDirectoryStore(ctx context.Context, d storage.Descriptor) (storage.Store, error) {
	path, err := d.String("path")
	if err != nil {
		return nil, err
	}
	return NewDirectoryStore(path, d.Bool("normalize_keys"))
}

// TempStore 是一个位于临时目录中的目录存储
// 它的生命周期随进程结束，因此不能被编码进文档
type TempStore struct {
	DirectoryStore
}

var _ storage.Closer = (*TempStore)(nil)

// NewTempStore 在 dir 下创建一个新的临时目录 (dir 为空时使用系统默认临时目录)
func NewTempStore(dir string) (*TempStore, error) {
	root, err := os.MkdirTemp(dir, "zv-temp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp store: %w", err)
	}
	ds, err := NewDirectoryStore(root, false)
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	return &TempStore{DirectoryStore: *ds}, nil
}

func (s *TempStore) Type() string { return TempStoreType }

// Describe 覆盖 DirectoryStore 的实现：临时目录不可编码
func (s *TempStore) Describe() (storage.Descriptor, error) {
	return nil, fmt.Errorf("%w: %s has no durable lifetime", storage.ErrUnsupportedStore, TempStoreType)
}

// Close 删除临时目录
func (s *TempStore) Close() error {
	return os.RemoveAll(s.rootPath)
}

func init() {
	storage.RegisterDecoder(DirectoryStoreType, decodeDirectoryStore)
}

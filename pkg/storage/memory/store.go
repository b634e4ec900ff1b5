package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"zarrvault/pkg/storage"
)

const (
	MemoryStoreType = "MemoryStore"
	KVStoreType     = "KVStore"
)

// MemoryStore 是进程内的易失存储
// 它没有持久化的生命周期，因此不能被编码进文档，保存时会被转换为内部存储
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

// Get 返回数据副本，防止外部修改
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	out := make([]byte, len(d))
	copy(out, d)
	return out, nil
}

// Set 保存数据副本
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// KVStore 是一个可编码的内存映射存储
// 它的全部内容会被写进描述符 ({"map": {...}})，适合存放体积很小的元数据
type KVStore struct {
	MemoryStore
}

var (
	_ storage.Store     = (*KVStore)(nil)
	_ storage.Describer = (*KVStore)(nil)
)

// NewKVStore 用已有的映射初始化 (会复制数据)
func NewKVStore(initial map[string][]byte) *KVStore {
	s := &KVStore{MemoryStore: MemoryStore{data: make(map[string][]byte, len(initial))}}
	for k, v := range initial {
		b := make([]byte, len(v))
		copy(b, v)
		s.data[k] = b
	}
	return s
}

func (s *KVStore) Type() string { return KVStoreType }

func (s *KVStore) Describe() (storage.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(map[string]any, len(s.data))
	for k, v := range s.data {
		b := make([]byte, len(v))
		copy(b, v)
		m[k] = b
	}
	return storage.Descriptor{"map": m}, nil
}

func decodeKVStore(ctx context.Context, d storage.Descriptor) (storage.Store, error) {
	initial := map[string][]byte{}
	switch m := d["map"].(type) {
	case nil:
	case map[string]any:
		for k, v := range m {
			switch b := v.(type) {
			case []byte:
				initial[k] = b
			case string:
				initial[k] = []byte(b)
			default:
				return nil, fmt.Errorf("KVStore value for %q must be bytes, got %T", k, v)
			}
		}
	default:
		return nil, fmt.Errorf("KVStore map must be a map, got %T", m)
	}
	return NewKVStore(initial), nil
}

func init() {
	storage.RegisterDecoder(KVStoreType, decodeKVStore)
}

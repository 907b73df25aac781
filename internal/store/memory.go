package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

var _ KVStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory KVStore, used in unit and dev testing.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]string
	quotaBytes int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]string),
	}
}

// NewMemoryStoreWithQuota returns a MemoryStore enforcing the same quota
// semantics as the sqlite store.
func NewMemoryStoreWithQuota(quotaBytes int64) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]string),
		quotaBytes: quotaBytes,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quotaBytes > 0 {
		var used int64
		for k, v := range s.entries {
			if k == key {
				continue
			}
			used += int64(len(k) + len(v))
		}
		if used+int64(len(key)+len(value)) > s.quotaBytes {
			return ErrQuotaExceeded
		}
	}

	s.entries[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

package store

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrQuotaExceeded = errors.New("store quota exceeded")
)

// KVStore is the persisted local key-value store shared by the token store,
// the cache manager and the tracker fallback snapshots. Writes are
// last-write-wins at the key level, which is fine for a single-user service.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

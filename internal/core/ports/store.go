package ports

import (
	"context"
)

// PeakStore is the durable key-value backing of the peak cache.
// Get returns domain.ErrNotFound for an absent key. Put on an existing key
// replaces the value without changing its insertion position. Keys lists
// keys oldest first.
type PeakStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

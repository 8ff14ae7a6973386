// Package cache memoizes peak envelopes in a bounded, durable store.
//
// Lookups and writes never report failure to their callers: a broken store
// or a corrupt entry looks like a miss, and a failed write is dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

// DefaultCapacity is the maximum number of entries kept.
const DefaultCapacity = 50

// Cache implements ports.PeakCache over a ports.PeakStore.
type Cache struct {
	store    ports.PeakStore
	capacity int
	key      KeyFunc
	log      zerolog.Logger
}

var _ ports.PeakCache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the entry limit. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithKeyFunc replaces the default SuffixKey derivation.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *Cache) {
		if fn != nil {
			c.key = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New wraps store. A nil store yields a cache that always misses.
func New(store ports.PeakStore, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		capacity: DefaultCapacity,
		key:      SuffixKey,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "cache").Logger()
	return c
}

// Key exposes the derived key for url.
func (c *Cache) Key(url string) string {
	return c.key(url)
}

// Get returns the stored envelope for url, or false on any kind of miss.
func (c *Cache) Get(ctx context.Context, url string) (domain.PeakArray, bool) {
	if c.store == nil || url == "" {
		return nil, false
	}
	key := c.key(url)

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.log.Warn().Err(err).Str("key", key).Msg("read failed, treating as miss")
		}
		return nil, false
	}

	var peaks domain.PeakArray
	if err := json.Unmarshal(raw, &peaks); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("corrupt entry, treating as miss")
		return nil, false
	}
	if err := peaks.Validate(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("invalid entry, treating as miss")
		return nil, false
	}
	return peaks, true
}

// Put stores peaks under url's key, then evicts the oldest entries until
// the store holds at most the configured capacity.
func (c *Cache) Put(ctx context.Context, url string, peaks domain.PeakArray) {
	if c.store == nil || url == "" {
		return
	}
	key := c.key(url)

	raw, err := json.Marshal(peaks)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("encode failed")
		return
	}
	if err := c.store.Put(ctx, key, raw); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("write failed")
		return
	}
	c.evict(ctx)
}

func (c *Cache) evict(ctx context.Context) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("list failed, skipping eviction")
		return
	}
	excess := len(keys) - c.capacity
	if excess <= 0 {
		return
	}
	if err := c.store.Delete(ctx, keys[:excess]...); err != nil {
		c.log.Warn().Err(err).Int("count", excess).Msg("eviction failed")
		return
	}
	c.log.Debug().Int("count", excess).Msg("evicted oldest entries")
}

// Keys lists stored keys oldest first. Errors yield an empty list.
func (c *Cache) Keys(ctx context.Context) []string {
	if c.store == nil {
		return nil
	}
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("list failed")
		return nil
	}
	return keys
}

// Len reports the number of stored entries.
func (c *Cache) Len(ctx context.Context) int {
	return len(c.Keys(ctx))
}

// Purge removes every entry and returns how many were dropped.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

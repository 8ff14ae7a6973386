// Package memory provides a process-local peak store used when persistence is
// disabled and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

// Store keeps entries in a map and their insertion order in a slice.
type Store struct {
	mu    sync.RWMutex
	m     map[string][]byte
	order []string
}

var _ ports.PeakStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{m: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	if _, ok := s.m[key]; !ok {
		s.order = append(s.order, key)
	}
	s.m[key] = v
	s.mu.Unlock()
	return nil
}

func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	s.mu.RUnlock()
	return keys, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	s.mu.Lock()
	kept := s.order[:0]
	for _, k := range s.order {
		if _, ok := drop[k]; ok {
			delete(s.m, k)
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// Package memory provides an in-process kv.Store.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/xenking/coupon-engine/internal/storage/kv"
)

var _ kv.Store = (*Store)(nil)

// Store keeps values in a map guarded by a mutex. Values are copied on the
// way in and out so callers never share backing arrays with the store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get implements kv.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return clone(v), nil
}

// Set implements kv.Store.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = clone(value)
	return nil
}

// SetNX implements kv.Store.
func (s *Store) SetNX(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return kv.ErrExists
	}
	s.data[key] = clone(value)
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return kv.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// Keys implements kv.Store.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, ctx.Err()
}

// GetMany implements kv.Store.
func (s *Store) GetMany(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := s.data[k]; ok {
			out[i] = clone(v)
		}
	}
	return out, nil
}

// Update implements kv.Store. The whole read-modify-write runs under the
// write lock, so it never reports kv.ErrConflict.
func (s *Store) Update(_ context.Context, key string, fn kv.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[key]
	if !ok {
		return kv.ErrNotFound
	}
	next, err := fn(clone(cur))
	if err != nil {
		return err
	}
	s.data[key] = clone(next)
	return nil
}

// Ping implements kv.Store.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Package kv defines the key-value backend contract the coupon store is
// built on.
package kv

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrConflict is returned by Update when the key changed between the
	// read and the write.
	ErrConflict = errors.New("kv: concurrent modification")
	// ErrExists is returned by SetNX when the key is already set.
	ErrExists = errors.New("kv: key exists")
)

// UpdateFunc receives the current value of a key and returns the value to
// store. Returning an error aborts the update and is passed through to the
// caller of Update unchanged.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a byte-oriented key-value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only if key is unset, returning ErrExists otherwise.
	SetNX(ctx context.Context, key string, value []byte) error
	// Delete removes key, returning ErrNotFound if it was not set.
	Delete(ctx context.Context, key string) error
	// Keys enumerates keys starting with prefix using an incremental scan.
	// The order is unspecified.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// GetMany returns values for keys in order. Missing keys yield nil.
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	// Update performs an optimistic read-modify-write of an existing key.
	// It returns ErrNotFound for a missing key and ErrConflict if another
	// writer changed the key before the write landed.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
}

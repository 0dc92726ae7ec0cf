// Package storage persists small serialized values under well-known keys.
//
// The profile snapshot is the only value the client keeps across restarts; it
// is written wholesale on every change so any backend that can replace a blob
// atomically is sufficient.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates no value is stored under the requested key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal key/value persistence contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Package statestore provides the key-value persistence used to carry checkout
// wizard state across reloads within a single checkout attempt.
package statestore

import (
	"context"
	"errors"
)

// ErrNotFound indicates no value is stored under the requested key.
var ErrNotFound = errors.New("statestore: key not found")

// Store persists opaque blobs keyed by session-scoped names.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Package store defines the persistent key-value contract backing quiz
// state and the metadata list, plus its backends (memory, sqlite, redis,
// postgres).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// KV abstracts how serialized quiz records are stored. Writes carry no
// cross-key atomicity: a quiz state and its metadata list entry are always
// two separate Set calls.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

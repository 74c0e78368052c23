// Package cache provides the pluggable store behind the caching behavior.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("herald: cache store is closed")

// Store holds encoded query results keyed by cache key. Implementations must
// be safe for concurrent use. A miss is (nil, false, nil), never an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

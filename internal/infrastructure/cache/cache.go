// Package cache provides the key-value surface used to decorate read paths.
// The interface is deliberately tiny so stores can be tested against an
// in-memory implementation while production wires Redis.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// KV is a byte-oriented cache with per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

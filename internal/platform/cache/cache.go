// Package cache provides the TTL key/value store behind the widget config
// cache. Redis is used when REDIS_URL is configured so that every server
// instance shares one cache; otherwise a process-local store is used.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

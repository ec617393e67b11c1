package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nomicfoundation/sitedata/internal/logging"
)

// TTLCache serves values from a Store while they are younger than the TTL,
// and otherwise calls the producer and stores its result.
type TTLCache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
}

// Option configures a TTLCache.
type Option func(*TTLCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) { c.now = now }
}

// WithLogger sets the logger used for hit/miss and write-failure messages.
func WithLogger(l logging.Logger) Option {
	return func(c *TTLCache) { c.logger = l }
}

// NewTTLCache wraps store with the given time-to-live.
func NewTTLCache(store Store, ttl time.Duration, opts ...Option) *TTLCache {
	c := &TTLCache{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *TTLCache) TTL() time.Duration {
	return c.ttl
}

// Validator is implemented by cached values that can check their own shape.
// A cached value failing Validate is treated as a miss.
type Validator interface {
	Validate() error
}

// Fetch returns the cached value for key while it is at most ttl old.
// Otherwise it calls produce; a producer error is returned unchanged and
// nothing is stored. Storing a fresh value is best-effort: a write failure is
// logged and the value is still returned.
func Fetch[T any](ctx context.Context, c *TTLCache, key string, produce func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](c, key); ok {
		c.logger.Debug(ctx, "Using cached value", "key", key)
		return v, nil
	}

	c.logger.Debug(ctx, "Cache miss, fetching", "key", key)
	v, err := produce(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn(ctx, err, "Could not encode value for the cache", "key", key)
		return v, nil
	}
	entry := Entry{StoredAt: c.now().UnixMilli(), Value: raw}
	if err := c.store.Set(key, entry); err != nil {
		c.logger.Warn(ctx, err, "Could not write cache entry", "key", key)
	}

	return v, nil
}

func lookup[T any](c *TTLCache, key string) (T, bool) {
	var zero T

	entry, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}

	age := c.now().UnixMilli() - entry.StoredAt
	if age > c.ttl.Milliseconds() {
		return zero, false
	}

	if string(entry.Value) == "null" {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		return zero, false
	}
	if val, ok := any(&v).(Validator); ok && val.Validate() != nil {
		return zero, false
	}
	if val, ok := any(v).(Validator); ok && val.Validate() != nil {
		return zero, false
	}

	return v, true
}

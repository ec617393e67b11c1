package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds a client from a redis:// URL or a plain host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore keeps entries as JSON strings under "sitedata:<namespace>:<key>".
// It lets CI builds share one cache. Keys carry no server-side expiry; the
// TTL is enforced by TTLCache like for every other store.
type RedisStore struct {
	client    *redis.Client
	namespace string
	timeout   time.Duration
}

// NewRedisStore returns a store over client. Each call is bounded by timeout.
func NewRedisStore(client *redis.Client, namespace string, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStore{client: client, namespace: namespace, timeout: timeout}
}

func (r *RedisStore) prefix() string {
	return "sitedata:" + r.namespace + ":"
}

func (r *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *RedisStore) Get(key string) (Entry, bool) {
	ctx, cancel := r.ctx()
	defer cancel()

	raw, err := r.client.Get(ctx, r.prefix()+SanitizeKey(key)).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || len(e.Value) == 0 {
		return Entry{}, false
	}
	return e, true
}

func (r *RedisStore) Set(key string, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.Set(ctx, r.prefix()+SanitizeKey(key), b, 0).Err()
}

func (r *RedisStore) Keys() ([]string, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Clear() error {
	keys, err := r.Keys()
	if err != nil || len(keys) == 0 {
		return err
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix() + k
	}
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.Del(ctx, full...).Err()
}

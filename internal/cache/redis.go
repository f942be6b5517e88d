package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gqlforge/gqlforge/internal/fingerprint"
)

// RedisStore backs the cross-process tier of the TTL cache with a
// shared Redis instance, so a Cache(ir, ttl) node's result survives
// process restarts and is visible to every replica of the gateway —
// the in-memory TTLCache only ever covers one process.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an already-dialed Redis client. prefix
// namespaces every key so the cache tier can share a Redis instance
// with other gateway subsystems without key collisions.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient dials addr: redis.ParseURL when addr looks like a
// URL, a plain host:port address otherwise.
func NewRedisClient(addr string) (*redis.Client, error) {
	if opts, err := redis.ParseURL(addr); err == nil {
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func (r *RedisStore) key(id fingerprint.ID) string {
	return r.prefix + fingerprint.Hex(id)
}

// Get fetches and JSON-decodes the cached value for id. A Redis miss
// or a connection error is treated identically as "not cached" — the
// caller falls through to re-evaluating the IO.
func (r *RedisStore) Get(id fingerprint.ID) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Set JSON-encodes value and stores it under id with the given ttl.
// Encode failures and connection errors are swallowed: a failed cache
// write degrades to "always miss", never to a request failure.
func (r *RedisStore) Set(id fingerprint.ID, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.client.Set(ctx, r.key(id), raw, ttl)
}

// Package cache implements the dedupe/cache envelope every IO
// evaluation flows through when dedupe is enabled and the current
// operation is a Query: an in-flight single-flight registry scoped to
// one request, wrapped by an optional process-wide TTL cache for IO
// nodes wrapped in Cache(ttl). The TTL store is an expiring
// golang-lru cache keyed by fingerprint.ID.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gqlforge/gqlforge/internal/fingerprint"
)

// Group is a per-request single-flight dedupe registry. One Group is
// created per incoming GraphQL operation and discarded when the
// response is complete; it must never be shared across requests,
// since its purpose is exactly to deduplicate identical upstream calls
// issued while serving one operation.
type Group struct {
	sf singleflight.Group
}

// NewGroup returns a fresh per-request dedupe registry.
func NewGroup() *Group {
	return &Group{}
}

// Do evaluates fn at most once per distinct id among concurrent
// callers within this Group; later callers for the same id in flight
// block and receive the same result (including the same error).
func (g *Group) Do(id fingerprint.ID, fn func() (any, error)) (any, error) {
	v, err, _ := g.sf.Do(keyOf(id), fn)
	return v, err
}

// Forget removes any in-flight entry for id, so a subsequent Do issues
// a fresh call. Used on cancellation: the dedupe registry must not
// retain an entry whose evaluation was torn down mid-flight.
func (g *Group) Forget(id fingerprint.ID) {
	g.sf.Forget(keyOf(id))
}

func keyOf(id fingerprint.ID) string {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return string(b[:])
}

// Store is the interface both cache tiers (in-process LRU and
// cross-process Redis) implement, so the evaluator's Cache(ir, ttl)
// node and the dedupe envelope work identically over either backing.
type Store interface {
	Get(id fingerprint.ID) (any, bool)
	Set(id fingerprint.ID, value any, ttl time.Duration)
}

// TTLCache is a process-wide cache for IO results wrapped in
// Cache(ttl). It is consulted around a Group.Do call, not instead of
// it: a cache hit short-circuits evaluation entirely; a miss still
// flows through single-flight dedupe before populating the cache.
type TTLCache struct {
	mu      sync.Mutex
	entries *lru.Cache[fingerprint.ID, ttlEntry]
}

type ttlEntry struct {
	value   any
	expires time.Time
}

// NewTTLCache returns a TTL cache bounded to capacity entries
// (eviction is LRU once capacity is exceeded, independent of
// expiry).
func NewTTLCache(capacity int) *TTLCache {
	c, _ := lru.New[fingerprint.ID, ttlEntry](capacity)
	return &TTLCache{entries: c}
}

// Get returns the cached value for id if present and not expired.
func (c *TTLCache) Get(id fingerprint.ID) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		c.entries.Remove(id)
		return nil, false
	}
	return e.value, true
}

// Set stores value under id with the given ttl.
func (c *TTLCache) Set(id fingerprint.ID, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(id, ttlEntry{value: value, expires: time.Now().Add(ttl)})
}

// Envelope drives the full dedupe/cache algorithm around a single IO
// evaluation: cache lookup (if ttl > 0), single-flight dedupe, cache
// population. Mutation callers must bypass Envelope entirely — the
// dedupe/cache envelope never applies to mutations.
func Envelope(group *Group, ttlCache Store, id fingerprint.ID, ttl time.Duration, eval func() (any, error)) (any, error) {
	if ttlCache != nil && ttl > 0 {
		if v, ok := ttlCache.Get(id); ok {
			return v, nil
		}
	}

	v, err := group.Do(id, eval)
	if err != nil {
		group.Forget(id)
		return nil, err
	}

	if ttlCache != nil && ttl > 0 {
		ttlCache.Set(id, v, ttl)
	}
	return v, nil
}

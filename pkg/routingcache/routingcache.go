// Package routingcache implements the Routing Cache (C13): memoisation of
// orchestrator decisions keyed by a normalised prompt hash, grounded on
// the teacher's go-cache-style LRU wrapper, bounded and TTL'd, with
// invalidation on agent-registry changes per spec.md §5's recommended
// resolution of the routing-cache Open Question.
package routingcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Decision is the cached shape of an orchestrator decision. The
// orchestrator package defines the richer type; this package only needs
// enough structure to replay a decision verbatim on a cache hit, so it
// stores the decision opaquely.
type Decision = any

// DefaultCapacity and DefaultTTL are the spec.md §6.5-adjacent defaults.
const (
	DefaultCapacity = 512
	DefaultTTL      = 15 * time.Minute
)

type entry struct {
	decision   Decision
	expiresAt  time.Time
	generation int64
}

// GenerationFunc returns the agent registry's current generation counter;
// Cache compares it on every Get and treats a mismatch as a miss, so
// agent-registry changes transparently invalidate stale entries without
// the caller needing to call Clear explicitly.
type GenerationFunc func() int64

// Cache is the Routing Cache (C13): a bounded LRU with per-entry TTL,
// keyed by a normalised prompt hash.
type Cache struct {
	mu         sync.Mutex
	lru        *lru.Cache
	ttl        time.Duration
	generation GenerationFunc
}

// NewCache creates a routing cache. capacity and ttl fall back to
// DefaultCapacity/DefaultTTL when zero. generation may be nil, in which
// case the cache never invalidates itself on agent-registry changes.
func NewCache(capacity int, ttl time.Duration, generation GenerationFunc) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l, _ := lru.New(capacity) // error only on capacity<=0, already guarded above
	return &Cache{lru: l, ttl: ttl, generation: generation}
}

// NormalizeKey collapses whitespace and case so prompts differing only in
// formatting hit the same cache entry.
func NormalizeKey(prompt string) string {
	fields := strings.Fields(strings.ToLower(prompt))
	joined := strings.Join(fields, " ")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) currentGeneration() int64 {
	if c.generation == nil {
		return 0
	}
	return c.generation()
}

// Get replays a prior decision verbatim on a hit; a miss (absent, expired,
// or invalidated by an agent-registry change since the entry was stored)
// returns ok=false.
func (c *Cache) Get(prompt string) (Decision, bool) {
	key := NormalizeKey(prompt)
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if time.Now().After(e.expiresAt) || e.generation != c.currentGeneration() {
		c.lru.Remove(key)
		return nil, false
	}
	return e.decision, true
}

// Put populates the cache on a successful decision parse, per spec.md
// §4.13 ("a miss populates on successful parse").
func (c *Cache) Put(prompt string, decision Decision) {
	key := NormalizeKey(prompt)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{
		decision:   decision,
		expiresAt:  time.Now().Add(c.ttl),
		generation: c.currentGeneration(),
	})
}

// Clear empties the cache unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of entries currently cached, including
// not-yet-expired stale ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

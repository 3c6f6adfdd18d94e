package api

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/tract-overlays/internal/metrics"
)

// PayloadCache is a concurrent-safe LRU cache of serialized response bodies
// with TTL expiration. Keys are slash-separated so a session's entries can
// be dropped together.
type PayloadCache struct {
	mu         sync.RWMutex
	entries    map[string]*payloadEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
	now        func() time.Time
}

type payloadEntry struct {
	data      []byte
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewPayloadCache creates a cache holding at most maxEntries bodies for ttl.
func NewPayloadCache(maxEntries int, ttl time.Duration) *PayloadCache {
	return &PayloadCache{
		entries:    make(map[string]*payloadEntry),
		maxEntries: max(maxEntries, 1),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get retrieves a cached body. Returns false on miss or expiration.
func (c *PayloadCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.miss()
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.miss()
		return nil, false
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	metrics.PayloadCacheTotal.WithLabelValues("hit").Inc()
	return entry.data, true
}

func (c *PayloadCache) miss() {
	c.misses.Add(1)
	metrics.PayloadCacheTotal.WithLabelValues("miss").Inc()
}

// Put stores a body, evicting the least recently used entry if at capacity.
func (c *PayloadCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &payloadEntry{data: data, createdAt: c.now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &payloadEntry{data: data, createdAt: c.now()}
	c.order = append(c.order, key)
}

// GetOrBuild returns the cached body for key, building and storing it on a
// miss. Build errors are returned and nothing is cached.
func (c *PayloadCache) GetOrBuild(key string, build func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}
	data, err := build()
	if err != nil {
		return nil, err
	}
	c.Put(key, data)
	return data, nil
}

// Invalidate removes every entry under the given key prefix.
func (c *PayloadCache) Invalidate(prefix string) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	var remaining []string
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		} else {
			remaining = append(remaining, key)
		}
	}
	c.order = remaining
}

// Stats returns cache performance statistics.
func (c *PayloadCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *PayloadCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

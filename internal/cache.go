package internal

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ResultCache keeps query results for a short time.
// Invalidate drops every entry at once by moving to a new generation, so a mutation never
// has to know which cached queries it affects.
type ResultCache struct {
	memCache   *cache.Cache
	generation atomic.Uint64
}

// NewResultCache returns a cache whose entries expire after ttl. A ttl <= 0 disables caching.
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		zap.S().Infof("Result cache disabled")
		return &ResultCache{}
	}
	return &ResultCache{memCache: cache.New(ttl, 2*ttl)}
}

func (c *ResultCache) key(key string) string {
	return generationKey(c.generation.Load(), key)
}

func generationKey(generation uint64, key string) string {
	return fmt.Sprintf("%d/%s", generation, key)
}

// Generation returns the current generation. Read it before querying the backend and store the
// result with SetAt, so a result read across an Invalidate is never served.
func (c *ResultCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.generation.Load()
}

// Get returns the value cached under key in the current generation
func (c *ResultCache) Get(key string) (value interface{}, found bool) {
	if c == nil || c.memCache == nil {
		return nil, false
	}
	value, found = c.memCache.Get(c.key(key))
	if found {
		zap.S().Debugf("Found %s in memcache", key)
	}
	return
}

// Set caches value under key with the default expiration
func (c *ResultCache) Set(key string, value interface{}) {
	if c == nil || c.memCache == nil {
		return
	}
	c.memCache.SetDefault(c.key(key), value)
}

// SetAt caches value under key in generation. Values of an invalidated generation are never returned.
func (c *ResultCache) SetAt(generation uint64, key string, value interface{}) {
	if c == nil || c.memCache == nil {
		return
	}
	if generation != c.generation.Load() {
		return
	}
	c.memCache.SetDefault(generationKey(generation, key), value)
}

// Invalidate makes every cached value unreachable. Old entries expire on their own.
func (c *ResultCache) Invalidate() {
	if c == nil || c.memCache == nil {
		return
	}
	c.generation.Add(1)
}

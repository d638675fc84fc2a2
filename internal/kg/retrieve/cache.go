package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
)

// resultCacheEntry is the form of a ContextBundle kept in the retrieval
// cache: the bundle as is, plus its creation time. model.ContextBundle has no
// JSON tags, so the Redis path encodes it under Go's field names.
type resultCacheEntry struct {
	Bundle    model.ContextBundle
	CreatedAt time.Time
}

// ResultCache caches retrieve() results keyed by (task, options), mirroring
// the teacher's FederationCache fallback pattern (search/federation_cache.go):
// a Redis-backed cache when configured, else an in-memory map with the same
// TTL semantics.
type ResultCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	local map[string]resultCacheEntry

	redis *redis.Client
}

// NewResultCache builds a cache. rdb may be nil, in which case the cache
// falls back to an in-memory map — the same shape as the teacher's
// NewFederationCache(nil) default.
func NewResultCache(rdb *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{ttl: ttl, local: map[string]resultCacheEntry{}, redis: rdb}
}

// Key derives a stable cache key from the retrieval parameters.
func Key(task string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(task))
	fmt.Fprintf(h, "|budget=%d|hops=%d|tests=%t|history=%t|compression=%d",
		opts.TokenBudget, opts.MaxHops, opts.IncludeTests, opts.IncludeHistory, opts.Compression)

	include := append([]string(nil), typeStrings(opts.IncludeTypes)...)
	exclude := append([]string(nil), typeStrings(opts.ExcludeTypes)...)
	sort.Strings(include)
	sort.Strings(exclude)
	h.Write([]byte("|include=" + strings.Join(include, ",")))
	h.Write([]byte("|exclude=" + strings.Join(exclude, ",")))

	symbols := append([]string(nil), opts.Symbols...)
	files := append([]string(nil), opts.Files...)
	sort.Strings(symbols)
	sort.Strings(files)
	h.Write([]byte("|symbols=" + strings.Join(symbols, ",")))
	h.Write([]byte("|files=" + strings.Join(files, ",")))

	return hex.EncodeToString(h.Sum(nil))
}

func typeStrings(types []model.ChunkType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// Get returns a cached bundle, if present and unexpired.
func (c *ResultCache) Get(ctx context.Context, key string) (model.ContextBundle, bool) {
	if c == nil {
		return model.ContextBundle{}, false
	}
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, redisKey(key)).Result()
		if err != nil {
			return model.ContextBundle{}, false
		}
		var entry resultCacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return model.ContextBundle{}, false
		}
		return entry.Bundle, true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.local[key]
	if !ok || time.Since(entry.CreatedAt) > c.ttl {
		return model.ContextBundle{}, false
	}
	return entry.Bundle, true
}

// Set stores a bundle under key.
func (c *ResultCache) Set(ctx context.Context, key string, bundle model.ContextBundle) {
	if c == nil {
		return
	}
	entry := resultCacheEntry{Bundle: bundle, CreatedAt: time.Now()}

	if c.redis != nil {
		raw, err := json.Marshal(entry)
		if err != nil {
			return
		}
		c.redis.Set(ctx, redisKey(key), raw, c.ttl)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = entry
}

func redisKey(key string) string {
	return "kgengine:retrieve:" + key
}

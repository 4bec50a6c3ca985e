package chunkspan

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ARTIFACT CACHE
// ═══════════════════════════════════════════════════════════════════════════════
// Derived index structures (DocNumMap, GroupData, sort data, boost sets,
// spellers) are built once per index generation and shared read-only by
// every query. Entries are keyed by (index path, generation, kind):
//
//	("/idx/books", 7, "groups:genre")   → *GroupData
//	("/idx/books", 7, "docnums")        → *DocNumMap
//
// Concurrent misses on one key run the builder once (singleflight). Entries
// leave the cache when the path moves to a newer generation, when they
// outlive the TTL, or when the cache exceeds MaxEntries (least recently used
// first). A failed build is never cached.
// ═══════════════════════════════════════════════════════════════════════════════

type artifactKey struct {
	path       string
	generation uint64
	kind       string
}

func (k artifactKey) String() string {
	return fmt.Sprintf("%s@%d/%s", k.path, k.generation, k.kind)
}

type artifactEntry struct {
	key     artifactKey
	value   any
	created time.Time
}

// ArtifactCache holds per-generation derived index structures.
type ArtifactCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	items      map[artifactKey]*list.Element
	lru        *list.List
	latest     map[string]uint64
	group      singleflight.Group
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewArtifactCache returns an empty cache. Zero MaxEntries or TTL disables
// that bound.
func NewArtifactCache(cfg CacheConfig, metrics *Metrics, logger *slog.Logger) *ArtifactCache {
	return &ArtifactCache{
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		items:      make(map[artifactKey]*list.Element),
		lru:        list.New(),
		latest:     make(map[string]uint64),
		metrics:    metrics,
		logger:     componentLogger(logger, "cache"),
		now:        time.Now,
	}
}

// Get returns the artifact for key, building it with build on a miss.
func (c *ArtifactCache) Get(path string, generation uint64, kind string, build func() (any, error)) (any, error) {
	key := artifactKey{path: path, generation: generation, kind: kind}
	if v, ok := c.lookup(key); ok {
		c.metrics.cacheLookup(true)
		return v, nil
	}
	c.metrics.cacheLookup(false)

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		start := c.now()
		v, err := build()
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		c.metrics.artifactBuilt(kind)
		c.logger.Debug("artifact built",
			slog.String("key", key.String()),
			slog.Duration("elapsed", c.now().Sub(start)))
		return v, nil
	})
	return v, err
}

// cachedArtifact is Get with a typed result.
func cachedArtifact[T any](c *ArtifactCache, path string, generation uint64, kind string, build func() (T, error)) (T, error) {
	v, err := c.Get(path, generation, kind, func() (any, error) { return build() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *ArtifactCache) lookup(key artifactKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*artifactEntry)
	if c.expired(ent) {
		c.remove(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return ent.value, true
}

func (c *ArtifactCache) store(key artifactKey, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key.generation < c.latest[key.path] {
		return // built for a generation already replaced
	}
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	c.items[key] = c.lru.PushFront(&artifactEntry{key: key, value: v, created: c.now()})
	for c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		c.remove(c.lru.Back())
	}
}

func (c *ArtifactCache) expired(ent *artifactEntry) bool {
	return c.ttl > 0 && c.now().Sub(ent.created) > c.ttl
}

func (c *ArtifactCache) remove(el *list.Element) {
	ent := c.lru.Remove(el).(*artifactEntry)
	delete(c.items, ent.key)
}

// Advance records that path is now at generation and drops every entry of
// an older generation. It returns the number of entries dropped.
func (c *ArtifactCache) Advance(path string, generation uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation > c.latest[path] {
		c.latest[path] = generation
	}
	dropped := 0
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if k := el.Value.(*artifactEntry).key; k.path == path && k.generation < generation {
			c.remove(el)
			dropped++
		}
		el = next
	}
	if dropped > 0 {
		c.logger.Info("cache invalidated",
			slog.String("path", path),
			slog.Uint64("generation", generation),
			slog.Int("dropped", dropped))
	}
	return dropped
}

// Len is the number of cached entries, expired ones included.
func (c *ArtifactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

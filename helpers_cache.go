// scriptnav/helpers_cache.go
// Process-wide parse cache (Ristretto) and the generic memoization helper
// built on it.
package scriptnav

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/dustin/go-humanize"
)

// memoryCache is the subset of ParseCache used by withMemoryCache.
type memoryCache interface {
	GetMemoryCache(key string) (any, bool)
	SetMemoryCache(key string, value any, cost int64, ttl time.Duration) bool
	MemoryCacheEnabled() bool
}

// ============================================================================
// Parse Cache
// ============================================================================

// ParseCache holds parsed modules keyed by path and content hash. Modules are
// published with every statement memo already computed, so concurrent readers
// never write to a cached tree.
type ParseCache struct {
	mu     sync.RWMutex
	cache  *ristretto.Cache
	latest map[string]string // path -> key of the newest parse
	ttl    time.Duration
	logger *slog.Logger
}

// NewParseCache creates the cache. If Ristretto cannot be initialised every
// Load parses afresh.
func NewParseCache(cfg Config, logger *slog.Logger) *ParseCache {
	if logger == nil {
		logger = slog.Default()
	}
	cacheLogger := logger.With("component", "ParseCache")

	memCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     cfg.MemoryCacheMaxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		cacheLogger.Warn("Failed to create ristretto memory cache, parse caching disabled.", "error", err)
		memCache = nil
	} else {
		cacheLogger.Info("Initialized ristretto parse cache", "max_cost", humanize.Bytes(uint64(cfg.MemoryCacheMaxBytes)), "ttl", cfg.MemoryCacheTTL)
	}
	return &ParseCache{
		cache:  memCache,
		latest: make(map[string]string),
		ttl:    cfg.MemoryCacheTTL,
		logger: cacheLogger,
	}
}

// cacheKey is "path:hash" with a 64-bit xxhash of the content.
func cacheKey(path string, src []byte) string {
	return fmt.Sprintf("%s:%016x", path, xxhash.Sum64(src))
}

// SetTTL changes the TTL applied to entries stored from now on.
func (pc *ParseCache) SetTTL(ttl time.Duration) {
	pc.mu.Lock()
	pc.ttl = ttl
	pc.mu.Unlock()
}

// Load returns the module for path and content, parsing it on a miss. The
// second result reports a cache hit.
func (pc *ParseCache) Load(path string, src []byte) (*Module, bool) {
	key := cacheKey(path, src)
	if v, ok := pc.GetMemoryCache(key); ok {
		if mod, ok := v.(*Module); ok {
			pc.remember(path, key)
			return mod, true
		}
	}

	mod := Parse(path, src)
	materializeMemos(mod)

	pc.mu.RLock()
	ttl := pc.ttl
	pc.mu.RUnlock()
	if pc.SetMemoryCache(key, mod, int64(len(src))+1, ttl) {
		pc.remember(path, key)
	}
	return mod, false
}

func (pc *ParseCache) remember(path, key string) {
	pc.mu.Lock()
	pc.latest[path] = key
	pc.mu.Unlock()
}

// Lookup returns the most recently loaded module for path, if still cached.
func (pc *ParseCache) Lookup(path string) (*Module, bool) {
	pc.mu.RLock()
	key, ok := pc.latest[path]
	pc.mu.RUnlock()
	if !ok {
		return nil, false
	}
	v, found := pc.GetMemoryCache(key)
	if !found {
		return nil, false
	}
	mod, ok := v.(*Module)
	return mod, ok
}

// Invalidate drops the newest parse of path.
func (pc *ParseCache) Invalidate(path string) {
	pc.mu.Lock()
	key, ok := pc.latest[path]
	delete(pc.latest, path)
	cache := pc.cache
	pc.mu.Unlock()
	if ok && cache != nil {
		cache.Del(key)
		pc.logger.Debug("Invalidated parse cache entry", "path", path, "key", key)
	}
}

// Clear empties the cache.
func (pc *ParseCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.latest = make(map[string]string)
	if pc.cache != nil {
		pc.logger.Info("Clearing ristretto parse cache")
		pc.cache.Clear()
	}
}

// Close releases the cache.
func (pc *ParseCache) Close() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.cache != nil {
		pc.logger.Info("Closing ristretto parse cache.")
		pc.cache.Close()
		pc.cache = nil
	}
}

// Metrics returns the Ristretto counters, or nil when caching is disabled.
func (pc *ParseCache) Metrics() *ristretto.Metrics {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if pc.cache != nil {
		return pc.cache.Metrics
	}
	return nil
}

// GetMemoryCache implements memoryCache.
func (pc *ParseCache) GetMemoryCache(key string) (any, bool) {
	pc.mu.RLock()
	cache := pc.cache
	pc.mu.RUnlock()
	if cache == nil {
		return nil, false
	}
	return cache.Get(key)
}

// SetMemoryCache implements memoryCache. It waits for the write buffer so the
// value is visible to the next Get.
func (pc *ParseCache) SetMemoryCache(key string, value any, cost int64, ttl time.Duration) bool {
	pc.mu.RLock()
	cache := pc.cache
	pc.mu.RUnlock()
	if cache == nil {
		return false
	}
	set := cache.SetWithTTL(key, value, cost, ttl)
	if set {
		cache.Wait()
		pc.logger.Debug("SetMemoryCache success.", "key", key, "cost", humanize.Bytes(uint64(cost)), "ttl", ttl)
	} else {
		pc.logger.Warn("SetMemoryCache failed.", "key", key, "cost", cost, "ttl", ttl)
	}
	return set
}

// MemoryCacheEnabled implements memoryCache.
func (pc *ParseCache) MemoryCacheEnabled() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.cache != nil
}

// materializeMemos computes every statement memo reachable through clone
// fields.
func materializeMemos(n Node) {
	if n == nil {
		return
	}
	if st, ok := n.(*Statement); ok {
		st.SetVars()
	}
	for _, spec := range nodeSchema[n.Kind()] {
		if spec.Policy != PolicyClone {
			continue
		}
		switch v := n.Field(spec.Name).(type) {
		case Node:
			materializeMemos(v)
		case []Node:
			for _, el := range v {
				materializeMemos(el)
			}
		case [][]Node:
			for _, inner := range v {
				for _, el := range inner {
					materializeMemos(el)
				}
			}
		}
	}
}

// ============================================================================
// Memoization Helper
// ============================================================================

// withMemoryCache wraps a function call with caching logic. On a miss it calls
// computeFn, stores the result with cost and ttl, and returns it. The boolean
// reports a cache hit.
func withMemoryCache[T any](
	cache memoryCache,
	cacheKey string,
	cost int64,
	ttl time.Duration,
	computeFn func() (T, error),
	logger *slog.Logger,
) (T, bool, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	cacheLogger := logger.With("cache_key", cacheKey)

	if cache == nil || !cache.MemoryCacheEnabled() {
		cacheLogger.Debug("Memory cache check skipped (cache disabled)")
		result, err := computeFn()
		return result, false, err
	}

	if cachedResult, found := cache.GetMemoryCache(cacheKey); found {
		if typedResult, ok := cachedResult.(T); ok {
			cacheLogger.Debug("Memory cache hit")
			return typedResult, true, nil
		}
		cacheLogger.Error("Memory cache type assertion failed", "expected_type", fmt.Sprintf("%T", zero), "actual_type", fmt.Sprintf("%T", cachedResult))
	} else {
		cacheLogger.Debug("Memory cache miss")
	}

	computedResult, err := computeFn()
	if err != nil {
		return zero, false, err
	}
	if cost <= 0 {
		cost = estimateCost(computedResult)
	}
	if cost <= 0 {
		cost = 1
	}
	if !cache.SetMemoryCache(cacheKey, computedResult, cost, ttl) {
		cacheLogger.Warn("Memory cache Set failed, item not cached", "cost", cost, "ttl", ttl)
	}
	return computedResult, false, nil
}

// estimateCost approximates the byte size of common cached values.
func estimateCost(v any) int64 {
	switch val := v.(type) {
	case string:
		return int64(len(val))
	case []byte:
		return int64(len(val))
	case []string:
		cost := int64(0)
		for _, s := range val {
			cost += int64(len(s))
		}
		return cost
	case []Completion:
		cost := int64(0)
		for _, c := range val {
			cost += int64(len(c.Label)) + 16
		}
		return cost
	default:
		return 1
	}
}

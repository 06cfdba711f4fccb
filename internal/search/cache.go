package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// CacheKey identifies one memoised ranking computation. The query text is
// normalised before keying so trivially different spellings share an entry.
type CacheKey struct {
	CallerID  string
	Query     string
	TopK      int
	Threshold float64
}

// String renders the key in a stable form shared by both cache backends.
func (k CacheKey) String() string {
	raw := fmt.Sprintf("%s:%s:top_k=%d:threshold=%g", k.CallerID, NormalizeQuery(k.Query), k.TopK, k.Threshold)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", hash[:16])
}

// NormalizeQuery lowercases the query and collapses whitespace runs.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// ResultCache memoises ranker output. Entries are tagged with the index
// generation they were computed against; a get for a different generation is
// a miss, so a superseded index can never satisfy a fresh read.
type ResultCache interface {
	Get(ctx context.Context, key CacheKey, generation uint64) ([]Hit, bool)
	Put(ctx context.Context, key CacheKey, generation uint64, hits []Hit)
	InvalidateAll(ctx context.Context) error
}

// memoryEntry is one stored computation.
type memoryEntry struct {
	generation uint64
	hits       []Hit
}

// MemoryCache is the default in-process ResultCache. Values are held in
// their structured form, so a hit returns exactly what the ranker produced.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the stored hits for the key when present and computed against
// the given generation.
func (c *MemoryCache) Get(ctx context.Context, key CacheKey, generation uint64) ([]Hit, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key.String()]
	c.mu.Unlock()
	if !ok || entry.generation != generation {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.hits, true
}

// Put stores hits for the key, overwriting any previous entry.
func (c *MemoryCache) Put(ctx context.Context, key CacheKey, generation uint64, hits []Hit) {
	c.mu.Lock()
	c.entries[key.String()] = memoryEntry{generation: generation, hits: hits}
	c.mu.Unlock()
}

// InvalidateAll drops every entry.
func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Stats returns the hit and miss counts.
func (c *MemoryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

package store

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of vocabulary lookups to keep.
const DefaultCacheSize = 1000

type resolved struct {
	ids     []int
	ignored []string
}

// CachedStore wraps an IndexStore with LRU caches for the two vocabulary
// lookups every query starts with: term resolution and wildcard scans.
// When the inner store is a Snapshotter, entries are keyed by its
// generation so a lookup still running on a replaced snapshot can never
// answer for the new one. Purge reclaims the space of old generations.
type CachedStore struct {
	IndexStore

	terms    *lru.Cache[string, resolved]
	patterns *lru.Cache[string, []string]

	hits   atomic.Int64
	misses atomic.Int64
}

var (
	_ IndexStore  = (*CachedStore)(nil)
	_ Snapshotter = (*CachedStore)(nil)
)

// NewCachedStore wraps inner. A non-positive size uses DefaultCacheSize.
func NewCachedStore(inner IndexStore, size int) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	terms, _ := lru.New[string, resolved](size)
	patterns, _ := lru.New[string, []string](size)
	return &CachedStore{
		IndexStore: inner,
		terms:      terms,
		patterns:   patterns,
	}
}

func cacheKey(gen uint64, caseSensitive bool, parts ...string) string {
	prefix := "i\x00"
	if caseSensitive {
		prefix = "s\x00"
	}
	return strconv.FormatUint(gen, 10) + "\x00" + prefix + strings.Join(parts, "\x00")
}

// Pin pins the inner store when it is a Snapshotter and returns a cached
// view of that generation.
func (c *CachedStore) Pin() (*Pinned, func(), error) {
	s, ok := c.IndexStore.(Snapshotter)
	if !ok {
		return &Pinned{IndexStore: &cachedView{cache: c, IndexStore: c.IndexStore}}, func() {}, nil
	}
	p, release, err := s.Pin()
	if err != nil {
		return nil, nil, err
	}
	view := &cachedView{cache: c, IndexStore: p.IndexStore, gen: p.Generation}
	return &Pinned{IndexStore: view, Generation: p.Generation}, release, nil
}

// ResolveWords returns a cached resolution when available.
func (c *CachedStore) ResolveWords(ctx context.Context, terms []string, caseSensitive bool) ([]int, []string, error) {
	p, release, err := c.Pin()
	if err != nil {
		return nil, nil, err
	}
	defer release()
	return p.ResolveWords(ctx, terms, caseSensitive)
}

// WordsMatchingPattern returns a cached vocabulary scan when available.
func (c *CachedStore) WordsMatchingPattern(ctx context.Context, pattern string, caseSensitive bool) ([]string, error) {
	p, release, err := c.Pin()
	if err != nil {
		return nil, err
	}
	defer release()
	return p.WordsMatchingPattern(ctx, pattern, caseSensitive)
}

// Purge drops every cached entry.
func (c *CachedStore) Purge() {
	c.terms.Purge()
	c.patterns.Purge()
}

// CacheStats returns the hit and miss counters.
func (c *CachedStore) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cachedView answers vocabulary lookups for one generation of the
// inner store from the shared caches.
type cachedView struct {
	IndexStore
	cache *CachedStore
	gen   uint64
}

func (v *cachedView) ResolveWords(ctx context.Context, terms []string, caseSensitive bool) ([]int, []string, error) {
	c := v.cache
	key := cacheKey(v.gen, caseSensitive, terms...)
	if r, ok := c.terms.Get(key); ok {
		c.hits.Add(1)
		return append([]int(nil), r.ids...), append([]string(nil), r.ignored...), nil
	}
	c.misses.Add(1)

	ids, ignored, err := v.IndexStore.ResolveWords(ctx, terms, caseSensitive)
	if err != nil {
		return nil, nil, err
	}
	c.terms.Add(key, resolved{
		ids:     append([]int(nil), ids...),
		ignored: append([]string(nil), ignored...),
	})
	return ids, ignored, nil
}

func (v *cachedView) WordsMatchingPattern(ctx context.Context, pattern string, caseSensitive bool) ([]string, error) {
	c := v.cache
	key := cacheKey(v.gen, caseSensitive, pattern)
	if words, ok := c.patterns.Get(key); ok {
		c.hits.Add(1)
		return append([]string{}, words...), nil
	}
	c.misses.Add(1)

	words, err := v.IndexStore.WordsMatchingPattern(ctx, pattern, caseSensitive)
	if err != nil {
		return nil, err
	}
	c.patterns.Add(key, append([]string{}, words...))
	return words, nil
}

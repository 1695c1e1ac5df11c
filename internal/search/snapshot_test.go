package search

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardsearch/internal/store"
)

// reloadAfterResolve triggers a reload once its first term lookup is done.
type reloadAfterResolve struct {
	store.IndexStore
	reload func()
	once   sync.Once
}

func (s *reloadAfterResolve) ResolveWords(ctx context.Context, terms []string, caseSensitive bool) ([]int, []string, error) {
	ids, ignored, err := s.IndexStore.ResolveWords(ctx, terms, caseSensitive)
	s.once.Do(s.reload)
	return ids, ignored, err
}

func memoryIndex(t *testing.T, word string, occ map[int]int) *store.MemoryStore {
	t.Helper()
	m := store.NewMemoryStore()
	require.NoError(t, m.AddDocument(store.Document{ID: 1, URL: "/a/1.txt"}))
	require.NoError(t, m.AddDocument(store.Document{ID: 99, URL: "/b/99.txt"}))
	m.AddWord(store.Word{ID: 7, Name: word})
	for doc, n := range occ {
		require.NoError(t, m.AddOccurrences(doc, 7, n))
	}
	return m
}

// reloadingEngine serves "apple" until the first lookup of a query, then
// reloads to an index where word 7 is "zebra" with different counts.
func reloadingEngine(t *testing.T, cached bool) *Engine {
	t.Helper()
	ctx := context.Background()

	var r *store.Reloader
	old := &reloadAfterResolve{
		IndexStore: memoryIndex(t, "apple", map[int]int{1: 2, 99: 1}),
		reload:     func() { require.NoError(t, r.Reload(ctx)) },
	}
	next := []store.IndexStore{old, memoryIndex(t, "zebra", map[int]int{99: 5})}
	load := func(context.Context) (store.IndexStore, error) {
		s := next[0]
		next = next[1:]
		return s, nil
	}

	var err error
	r, err = store.NewReloader(ctx, "index.db", load, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	var idx store.IndexStore = r
	if cached {
		idx = store.NewCachedStore(r, 16)
	}
	e, err := NewEngine(idx)
	require.NoError(t, err)
	return e
}

func TestEngine_Search_ReloadMidQueryKeepsSnapshot(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(map[bool]string{false: "reloader", true: "cached"}[cached], func(t *testing.T) {
			// Given: an engine whose index is replaced right after term resolution
			e := reloadingEngine(t, cached)

			// When: searching for apple
			res, err := e.Search(context.Background(), []string{"apple"}, Options{})
			require.NoError(t, err)

			// Then: ranking uses apple's counts from the index the query started on
			require.Len(t, res.Hits, 2)
			assert.Equal(t, 1, res.Hits[0].Document.ID)
			assert.Equal(t, 2, res.Hits[0].Hits)
			assert.Equal(t, 99, res.Hits[1].Document.ID)
			assert.Equal(t, 1, res.Hits[1].Hits)
			assert.Equal(t, 3, res.TotalHits)

			// And: the next query sees the new index
			res, err = e.Search(context.Background(), []string{"apple"}, Options{})
			require.NoError(t, err)
			assert.Empty(t, res.Hits)
			assert.Equal(t, []string{"apple"}, res.Ignored)
		})
	}
}

func TestEngine_PatternSearch_ReloadMidQueryKeepsSnapshot(t *testing.T) {
	// Given: an engine whose index is replaced right after term resolution
	e := reloadingEngine(t, true)

	// When: running a literal pattern, which resolves terms first
	res, err := e.PatternSearch(context.Background(), "apple", Options{})
	require.NoError(t, err)

	// Then: both documents come from the original index
	require.Len(t, res.Hits, 2)
	assert.Equal(t, 1, res.Hits[0].Document.ID)
	assert.Equal(t, 3, res.TotalHits)
}

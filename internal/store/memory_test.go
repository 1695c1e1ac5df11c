package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardsearch/internal/store"
	"github.com/Aman-CERP/shardsearch/internal/store/storetest"
)

func TestMemoryStore_BuiltByHand(t *testing.T) {
	// Given: a store filled through the Add methods
	m := store.NewMemoryStore()
	require.NoError(t, m.AddDocument(store.Document{ID: 7, URL: "/7.txt"}))
	m.AddWord(store.Word{ID: 1, Name: "Go"})
	m.AddWord(store.Word{ID: 2, Name: "go"})
	require.NoError(t, m.AddOccurrences(7, 2, 4))
	require.NoError(t, m.AddOccurrences(7, 1, 0))

	ctx := context.Background()

	// When/Then: case-insensitive resolution picks the lowest id
	ids, _, err := m.ResolveWords(ctx, []string{"GO"}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)

	// And: zero-count occurrences are not recorded
	got, err := m.DocumentsContaining(ctx, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []store.DocCount{{DocID: 7, Count: 4}}, got)

	missing, err := m.MissingWords(ctx, 7, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, missing)
}

func TestMemoryStore_RejectsOutOfRangeDocIDs(t *testing.T) {
	m := store.NewMemoryStore()
	assert.Error(t, m.AddDocument(store.Document{ID: -1}))
	assert.Error(t, m.AddOccurrences(-5, 1, 1))

	missing, err := m.MissingWords(context.Background(), -1, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, missing)
}

func TestMemoryStore_DuplicateWordIDIgnored(t *testing.T) {
	m := store.NewMemoryStore()
	m.AddWord(store.Word{ID: 1, Name: "first"})
	m.AddWord(store.Word{ID: 1, Name: "second"})

	names, err := m.WordNames(context.Background(), []int{1})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, names)
}

func TestMemoryStore_DocumentsContaining_HonoursCancellation(t *testing.T) {
	m := storetest.NewMemory(t, storetest.Fruit())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.DocumentsContaining(ctx, []int{1, 2})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSource struct{}

func (failingSource) ForEachDocument(context.Context, func(store.Document) error) error {
	return errors.New("disk gone")
}
func (failingSource) ForEachWord(context.Context, func(store.Word) error) error { return nil }
func (failingSource) ForEachOccurrence(context.Context, func(int, int, int) error) error {
	return nil
}

func TestLoadMemoryStore_PropagatesSourceErrors(t *testing.T) {
	_, err := store.LoadMemoryStore(context.Background(), failingSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestMemoryStore_MatchesSQLite(t *testing.T) {
	// Given: the same index in both backends
	idx := storetest.Wildcard()
	sq := storetest.NewSQLite(t, idx)
	mem := storetest.NewMemory(t, idx)
	ctx := context.Background()

	// Then: every vocabulary word yields the same postings
	for _, w := range idx.Words {
		a, err := sq.DocumentsContaining(ctx, []int{w.ID})
		require.NoError(t, err)
		b, err := mem.DocumentsContaining(ctx, []int{w.ID})
		require.NoError(t, err)
		assert.Equal(t, a, b, "word %q", w.Name)
	}

	sqStats, err := sq.Stats(ctx, 5)
	require.NoError(t, err)
	memStats, err := mem.Stats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, sqStats, memStats)
}

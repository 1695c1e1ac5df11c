// Package storetest builds small indexes for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardsearch/internal/store"
)

// Index describes an index to seed. Occurrences lists one entry per
// occurrence, so repeating a pair raises its count.
type Index struct {
	Documents   []store.Document
	Words       []store.Word
	Occurrences [][2]int // {docID, wordID}
}

// Fruit is the apple/banana index: doc 10 holds apple x3, doc 11 holds
// apple x1 and banana x2, doc 12 holds cherry.
func Fruit() Index {
	return Index{
		Documents: []store.Document{
			{ID: 10, URL: "/corpus/10.txt", IndexTime: "2024-01-02 10:00:00", CreationTime: "2023-12-01 08:00:00"},
			{ID: 11, URL: "/corpus/11.txt", IndexTime: "2024-01-02 10:00:01", CreationTime: "2023-12-02 08:00:00"},
			{ID: 12, URL: "/corpus/12.txt", IndexTime: "2024-01-02 10:00:02", CreationTime: "2023-12-03 08:00:00"},
		},
		Words: []store.Word{
			{ID: 1, Name: "apple"},
			{ID: 2, Name: "banana"},
			{ID: 3, Name: "cherry"},
		},
		Occurrences: [][2]int{
			{10, 1}, {10, 1}, {10, 1},
			{11, 1}, {11, 2}, {11, 2},
			{12, 3},
		},
	}
}

// Wildcard is a vocabulary for pattern tests. Document URLs carry
// numeric file names so the filename tie-break is observable.
func Wildcard() Index {
	return Index{
		Documents: []store.Document{
			{ID: 1, URL: "/mail/126.txt"},
			{ID: 2, URL: "/mail/15.txt"},
			{ID: 3, URL: "/mail/101.txt"},
			{ID: 4, URL: "/mail/readme.txt"},
			{ID: 5, URL: "/mail/7"},
		},
		Words: []store.Word{
			{ID: 1, Name: "test"},
			{ID: 2, Name: "tast"},
			{ID: 3, Name: "toast"},
			{ID: 4, Name: "testing"},
			{ID: 5, Name: "te"},
			{ID: 6, Name: "ate"},
			{ID: 7, Name: "Test"},
			{ID: 8, Name: "hello"},
			{ID: 9, Name: "50%_off"},
			{ID: 10, Name: "a[1]"},
		},
		Occurrences: [][2]int{
			{1, 1}, {1, 4}, {1, 1},
			{2, 1}, {2, 7},
			{3, 2}, {3, 3},
			{4, 4}, {4, 5}, {4, 6},
			{5, 8}, {5, 9}, {5, 10},
			{2, 8},
		},
	}
}

// Seed writes idx into s, which must be empty.
func Seed(t testing.TB, s *store.SQLiteStore, idx Index) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Schema(ctx))
	for _, d := range idx.Documents {
		require.NoError(t, s.InsertDocument(ctx, d))
	}
	for _, w := range idx.Words {
		require.NoError(t, s.InsertWord(ctx, w))
	}
	for _, o := range idx.Occurrences {
		require.NoError(t, s.InsertOccurrence(ctx, o[0], o[1]))
	}
}

// NewSQLite returns an in-memory SQLite store seeded with idx.
func NewSQLite(t testing.TB, idx Index) *store.SQLiteStore {
	t.Helper()

	s, err := store.OpenSQLite(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	Seed(t, s, idx)
	return s
}

// NewSQLiteFile writes idx to a database file in a temp dir and returns its path.
func NewSQLiteFile(t testing.TB, idx Index) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.db")
	WriteFile(t, path, idx)
	return path
}

// WriteFile creates (or extends) the database at path with idx.
func WriteFile(t testing.TB, path string, idx Index) {
	t.Helper()
	ctx := context.Background()

	s, err := store.CreateSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	Seed(t, s, idx)
}

// NewMemory returns a MemoryStore seeded with idx.
func NewMemory(t testing.TB, idx Index) *store.MemoryStore {
	t.Helper()

	m, err := store.LoadMemoryStore(context.Background(), NewSQLite(t, idx))
	require.NoError(t, err)
	return m
}

// Package store provides the inverted-index lookups a shard answers
// queries from: vocabulary resolution, posting lists with occurrence
// counts, document details and wildcard vocabulary scans.
//
// The index is built by an external indexer. Everything here is a read
// path; the Insert helpers on SQLiteStore exist for fixtures.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("index store is closed")

// Document is an indexed document.
type Document struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	IndexTime    string `json:"indexTime,omitempty"`
	CreationTime string `json:"creationTime,omitempty"`
}

// Word is a vocabulary entry.
type Word struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DocCount pairs a document with the summed occurrences of the queried
// words in it.
type DocCount struct {
	DocID int
	Count int
}

// WordCount is a vocabulary entry with its total occurrence count.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Stats summarises an index.
type Stats struct {
	Documents   int         `json:"documents"`
	Words       int         `json:"words"`
	Occurrences int         `json:"occurrences"`
	TopWords    []WordCount `json:"topWords"`
}

// IndexStore is the read contract the query engine runs against.
// Implementations must be safe for concurrent use.
type IndexStore interface {
	// ResolveWords maps terms to word ids. Terms without a match are
	// returned in ignored, in input order, and contribute no id.
	ResolveWords(ctx context.Context, terms []string, caseSensitive bool) (ids []int, ignored []string, err error)

	// DocumentsContaining returns every document holding at least one of
	// wordIDs with the total occurrence count of all of them, ordered by
	// count descending then docID ascending.
	DocumentsContaining(ctx context.Context, wordIDs []int) ([]DocCount, error)

	// DocumentDetails returns the documents for docIDs. Unknown ids are skipped.
	DocumentDetails(ctx context.Context, docIDs []int) ([]Document, error)

	// MissingWords returns the ids in wordIDs that do not occur in docID,
	// preserving input order.
	MissingWords(ctx context.Context, docID int, wordIDs []int) ([]int, error)

	// WordNames maps ids back to names, preserving input order and
	// skipping unknown ids.
	WordNames(ctx context.Context, wordIDs []int) ([]string, error)

	// WordsMatchingPattern returns the vocabulary words matching a
	// '?'/'*' wildcard pattern anchored at both ends. A blank pattern
	// matches nothing.
	WordsMatchingPattern(ctx context.Context, pattern string, caseSensitive bool) ([]string, error)

	// DocumentsForWords groups, per document, which of words occur in it.
	// Documents with no match are absent.
	DocumentsForWords(ctx context.Context, words []string) (map[int][]string, error)

	// Stats reports document, vocabulary and occurrence totals plus the
	// topWords most frequent words.
	Stats(ctx context.Context, topWords int) (*Stats, error)

	Close() error
}

// Snapshotter is implemented by stores whose contents can be replaced
// while serving. Pin fixes the current generation until release is
// called, so a query's lookups all see one index.
type Snapshotter interface {
	Pin() (view *Pinned, release func(), err error)
}

// Pinned is one generation of a replaceable store. Its lifetime belongs
// to the release func returned by Pin, so Close does nothing.
type Pinned struct {
	IndexStore
	Generation uint64
}

// Close is a no-op; call the release func returned by Pin instead.
func (p *Pinned) Close() error {
	return nil
}

// differenceInOrder returns the ids of want not in present, in want's order.
func differenceInOrder(want []int, present map[int]struct{}) []int {
	missing := make([]int, 0, len(want))
	for _, id := range want {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// dedupeInts drops repeated ids, keeping first occurrence.
func dedupeInts(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Package search implements the query engine of one shard: term search
// ranked by term frequency and wildcard pattern search ranked by breadth
// of match. It depends only on a store.IndexStore.
package search

import (
	"time"

	"github.com/Aman-CERP/shardsearch/internal/store"
)

// Options are the per-request query settings.
type Options struct {
	// Limit caps the number of returned documents. 0 means unlimited.
	Limit int

	// CaseSensitive selects exact rather than case-folded word matching.
	CaseSensitive bool
}

// DocumentHit is one ranked document of a term search.
type DocumentHit struct {
	Document store.Document
	// Hits is the summed occurrence count of all query words in the document.
	Hits int
	// Missing lists the resolved query words that do not occur in the document.
	Missing []string
}

// Result is the answer to a term search.
type Result struct {
	Query          []string
	TotalDocuments int
	Hits           []DocumentHit
	Ignored        []string
	TotalHits      int
	ReturnedHits   int
	Elapsed        time.Duration
}

// ReturnedDocuments returns the number of documents in the result.
func (r *Result) ReturnedDocuments() int {
	return len(r.Hits)
}

// IsTruncated reports whether the limit cut off matching documents.
func (r *Result) IsTruncated() bool {
	return r.ReturnedDocuments() < r.TotalDocuments
}

// PatternHit is one ranked document of a pattern search.
type PatternHit struct {
	Document store.Document
	// MatchingWords are the distinct vocabulary words matched in the
	// document, sorted case-insensitively.
	MatchingWords []string
}

// PatternResult is the answer to a pattern search.
type PatternResult struct {
	Pattern        string
	TotalDocuments int
	Hits           []PatternHit
	TotalHits      int
	ReturnedHits   int
	Elapsed        time.Duration
}

// ReturnedDocuments returns the number of documents in the result.
func (r *PatternResult) ReturnedDocuments() int {
	return len(r.Hits)
}

// IsTruncated reports whether the limit cut off matching documents.
func (r *PatternResult) IsTruncated() bool {
	return r.ReturnedDocuments() < r.TotalDocuments
}

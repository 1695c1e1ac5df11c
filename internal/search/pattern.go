package search

import (
	"cmp"
	"context"
	"math"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/store"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

// PatternSearch runs a wildcard query. '?' matches exactly one character
// and '*' matches any run, anchored at both ends of a word.
//
// A pattern without wildcards is answered by Search so literal patterns
// rank and count exactly like a one-term query. Wildcard matches are
// ranked by the number of distinct matching words per document, then by
// the number in the document's file name, then by document id.
func (e *Engine) PatternSearch(ctx context.Context, pattern string, opts Options) (*PatternResult, error) {
	start := time.Now()

	idx, release, err := e.pin()
	if err != nil {
		return nil, err
	}
	defer release()

	var res *PatternResult
	switch {
	case strings.TrimSpace(pattern) == "":
		res = emptyPattern(pattern)
	case !store.IsWildcard(pattern):
		res, err = e.literalPattern(ctx, idx, pattern, opts)
	default:
		res, err = e.wildcardPattern(ctx, idx, pattern, opts)
	}
	if err != nil {
		return nil, err
	}
	res.Elapsed += time.Since(start)

	e.recordMetrics(telemetry.QueryTypePattern, pattern, res.ReturnedDocuments(), res.Elapsed)
	return res, nil
}

func emptyPattern(pattern string) *PatternResult {
	return &PatternResult{Pattern: pattern, Hits: []PatternHit{}}
}

// literalPattern runs an unlimited term search and cuts the ranked list,
// so totals describe every matching document.
func (e *Engine) literalPattern(ctx context.Context, idx store.IndexStore, pattern string, opts Options) (*PatternResult, error) {
	full, err := e.search(ctx, idx, []string{pattern}, Options{CaseSensitive: opts.CaseSensitive})
	if err != nil {
		return nil, err
	}

	res := emptyPattern(pattern)
	res.TotalDocuments = full.TotalDocuments
	res.TotalHits = full.TotalHits

	for _, h := range full.Hits[:cut(len(full.Hits), opts.Limit)] {
		res.Hits = append(res.Hits, PatternHit{Document: h.Document, MatchingWords: []string{pattern}})
		res.ReturnedHits += h.Hits
	}
	return res, nil
}

type patternMatch struct {
	docID    int
	words    []string
	doc      store.Document
	hasDoc   bool
	fileRank float64
}

func (e *Engine) wildcardPattern(ctx context.Context, idx store.IndexStore, pattern string, opts Options) (*PatternResult, error) {
	res := emptyPattern(pattern)

	words, err := idx.WordsMatchingPattern(ctx, pattern, opts.CaseSensitive)
	if err != nil {
		return nil, serrors.StoreError("match pattern against vocabulary", err)
	}
	if len(words) == 0 {
		return res, nil
	}

	byDoc, err := idx.DocumentsForWords(ctx, words)
	if err != nil {
		return nil, serrors.StoreError("find documents for matched words", err)
	}
	if len(byDoc) == 0 {
		return res, nil
	}

	matches := make([]*patternMatch, 0, len(byDoc))
	docIDs := make([]int, 0, len(byDoc))
	for id, ws := range byDoc {
		matches = append(matches, &patternMatch{docID: id, words: distinctFold(ws)})
		docIDs = append(docIDs, id)
	}
	slices.Sort(docIDs)

	res.TotalDocuments = len(matches)
	for _, m := range matches {
		res.TotalHits += len(m.words)
	}

	// The file-name tie-break needs every matched document's URL.
	details, err := documentsByID(ctx, idx, docIDs)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		m.doc, m.hasDoc = details[m.docID]
		m.fileRank = math.Inf(1)
		if m.hasDoc {
			m.fileRank = filenameNumber(m.doc.URL)
		}
	}

	slices.SortFunc(matches, func(a, b *patternMatch) int {
		if c := cmp.Compare(len(b.words), len(a.words)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.fileRank, b.fileRank); c != 0 {
			return c
		}
		return cmp.Compare(a.docID, b.docID)
	})

	for _, m := range matches[:cut(len(matches), opts.Limit)] {
		if !m.hasDoc {
			continue
		}
		res.Hits = append(res.Hits, PatternHit{Document: m.doc, MatchingWords: m.words})
		res.ReturnedHits += len(m.words)
	}
	return res, nil
}

// distinctFold removes case-insensitive duplicates, keeping the first
// spelling in byte order, and sorts case-insensitively.
func distinctFold(words []string) []string {
	sorted := slices.Clone(words)
	slices.Sort(sorted)

	seen := make(map[string]struct{}, len(sorted))
	out := make([]string, 0, len(sorted))
	for _, w := range sorted {
		key := strings.ToLower(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}

	slices.SortStableFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}

// filenameNumber parses the base name of url, without extension, as an
// integer. Anything else ranks last.
func filenameNumber(url string) float64 {
	base := path.Base(strings.ReplaceAll(url, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	n, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return math.Inf(1)
	}
	return float64(n)
}

package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/store"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine answers term and pattern queries against one IndexStore. It holds
// no per-query state and is safe for concurrent use.
type Engine struct {
	store   store.IndexStore
	metrics *telemetry.QueryMetrics
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithMetrics sets an optional query metrics collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine over idx.
func NewEngine(idx store.IndexStore, opts ...EngineOption) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: index store is required", ErrNilDependency)
	}
	e := &Engine{store: idx}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Store returns the underlying index store.
func (e *Engine) Store() store.IndexStore {
	return e.store
}

// Search runs a term query. Documents are ranked by the summed occurrence
// count of all resolved terms, ties broken by ascending document id.
// Blank terms are dropped; no terms yields an empty result.
func (e *Engine) Search(ctx context.Context, terms []string, opts Options) (*Result, error) {
	start := time.Now()

	idx, release, err := e.pin()
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := e.search(ctx, idx, terms, opts)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)

	e.recordMetrics(telemetry.QueryTypeTerm, joinTerms(res.Query), res.ReturnedDocuments(), res.Elapsed)
	return res, nil
}

func (e *Engine) search(ctx context.Context, idx store.IndexStore, terms []string, opts Options) (*Result, error) {
	query := cleanTerms(terms)
	res := &Result{
		Query:   query,
		Hits:    []DocumentHit{},
		Ignored: []string{},
	}
	if len(query) == 0 {
		return res, nil
	}

	ids, ignored, err := idx.ResolveWords(ctx, query, opts.CaseSensitive)
	if err != nil {
		return nil, serrors.StoreError("resolve query terms", err)
	}
	if ignored != nil {
		res.Ignored = ignored
	}

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return res, nil
	}

	ranked, err := idx.DocumentsContaining(ctx, ids)
	if err != nil {
		return nil, serrors.StoreError("rank documents", err)
	}

	res.TotalDocuments = len(ranked)
	for _, dc := range ranked {
		res.TotalHits += dc.Count
	}

	retained := ranked[:cut(len(ranked), opts.Limit)]
	if len(retained) == 0 {
		return res, nil
	}

	docIDs := make([]int, len(retained))
	for i, dc := range retained {
		docIDs[i] = dc.DocID
	}
	details, err := documentsByID(ctx, idx, docIDs)
	if err != nil {
		return nil, err
	}

	for _, dc := range retained {
		doc, ok := details[dc.DocID]
		if !ok {
			continue
		}

		missingIDs, err := idx.MissingWords(ctx, dc.DocID, ids)
		if err != nil {
			return nil, serrors.StoreError("compute missing terms", err)
		}
		missing := []string{}
		if len(missingIDs) > 0 {
			names, err := idx.WordNames(ctx, missingIDs)
			if err != nil {
				return nil, serrors.StoreError("resolve missing terms", err)
			}
			missing = append(missing, names...)
		}

		res.Hits = append(res.Hits, DocumentHit{Document: doc, Hits: dc.Count, Missing: missing})
		res.ReturnedHits += dc.Count
	}
	return res, nil
}

func documentsByID(ctx context.Context, idx store.IndexStore, ids []int) (map[int]store.Document, error) {
	docs, err := idx.DocumentDetails(ctx, ids)
	if err != nil {
		return nil, serrors.StoreError("fetch document details", err)
	}
	byID := make(map[int]store.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return byID, nil
}

// pin fixes the store generation a query runs against, so every lookup
// of one query sees the same index even across a reload.
func (e *Engine) pin() (store.IndexStore, func(), error) {
	s, ok := e.store.(store.Snapshotter)
	if !ok {
		return e.store, func() {}, nil
	}
	p, release, err := s.Pin()
	if err != nil {
		return nil, nil, serrors.StoreError("pin index snapshot", err)
	}
	return p, release, nil
}

func (e *Engine) recordMetrics(qt telemetry.QueryType, query string, results int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		ResultCount: results,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// cut returns how many of n ranked documents a limit keeps.
func cut(n, limit int) int {
	if limit > 0 && limit < n {
		return limit
	}
	return n
}

// Package telemetry collects per-process query metrics for the shard and
// coordinator services. Nothing leaves the process unless a local
// QueryMetricsStore is configured.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType distinguishes term queries from wildcard pattern queries.
type QueryType string

const (
	QueryTypeTerm    QueryType = "term"
	QueryTypePattern QueryType = "pattern"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one answered query.
type QueryEvent struct {
	Query       string
	QueryType   QueryType
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ShardEvent is the outcome of one shard call made by the coordinator.
// An empty FailureKind means the call succeeded.
type ShardEvent struct {
	Shard       string
	FailureKind string
	Latency     time.Duration
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, 0, b.size)
	if b.size < b.capacity {
		return append(out, b.items[:b.size]...)
	}
	out = append(out, b.items[b.head:]...)
	return append(out, b.items[:b.head]...)
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// ExtractTerms returns the lowercased terms of a query. Wildcard
// characters are kept so pattern queries are counted as typed.
func ExtractTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// ShardStats aggregates the coordinator's calls to one shard.
type ShardStats struct {
	Calls    int64                   `json:"calls"`
	Failures map[string]int64        `json:"failures,omitempty"`
	Latency  map[LatencyBucket]int64 `json:"latency"`
}

// QueryMetricsSnapshot is an immutable snapshot of query metrics.
type QueryMetricsSnapshot struct {
	QueryTypeCounts     map[QueryType]int64     `json:"queryTypeCounts"`
	TopTerms            []TermCount             `json:"topTerms"`
	ZeroResultQueries   []string                `json:"zeroResultQueries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latencyDistribution"`
	Shards              map[string]ShardStats   `json:"shards,omitempty"`
	TotalQueries        int64                   `json:"totalQueries"`
	ZeroResultCount     int64                   `json:"zeroResultCount"`
	ExactRepeatCount    int64                   `json:"exactRepeatCount"`
	ExactRepeatRate     float64                 `json:"exactRepeatRate"`
	UniqueQueryCount    int64                   `json:"uniqueQueryCount"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// RepetitionSummary returns a one-line summary of query repetition.
func (s *QueryMetricsSnapshot) RepetitionSummary() string {
	if s.TotalQueries == 0 {
		return "No queries recorded"
	}
	return "repeats=" + strconv.FormatFloat(s.ExactRepeatRate*100, 'f', 1, 64) + "%" +
		", unique=" + strconv.FormatInt(s.UniqueQueryCount, 10)
}

// QueryMetricsStore defines persistence operations for query metrics.
type QueryMetricsStore interface {
	// SaveQueryTypeCounts adds daily query type counts.
	SaveQueryTypeCounts(date string, counts map[QueryType]int64) error

	// GetQueryTypeCounts retrieves counts for a date range.
	GetQueryTypeCounts(from, to string) (map[QueryType]int64, error)

	// UpsertTermCounts adds to term frequency counts.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms retrieves the top N terms by frequency.
	GetTopTerms(limit int) ([]TermCount, error)

	// AddZeroResultQuery appends to the bounded zero-result log.
	AddZeroResultQuery(query string, timestamp time.Time) error

	// GetZeroResultQueries retrieves recent zero-result queries, newest first.
	GetZeroResultQueries(limit int) ([]string, error)

	// SaveLatencyCounts adds daily latency histogram counts.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// GetLatencyCounts retrieves latency distribution for a date range.
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	// SaveShardFailures adds daily per-shard failure counts keyed by kind.
	SaveShardFailures(date string, failures map[string]map[string]int64) error

	// Close releases resources.
	Close() error
}

// QueryMetricsConfig configures the query metrics collector.
type QueryMetricsConfig struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // default 60s, 0 disables auto-flush
}

// DefaultQueryMetricsConfig returns sensible defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

type zeroQuery struct {
	query string
	at    time.Time
}

// pending holds what has been recorded since the last flush.
type pending struct {
	types     map[QueryType]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	zero      []zeroQuery
	failures  map[string]map[string]int64
}

func newPending() pending {
	return pending{
		types:     make(map[QueryType]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
		failures:  make(map[string]map[string]int64),
	}
}

func (p pending) empty() bool {
	return len(p.types) == 0 && len(p.terms) == 0 && len(p.latencies) == 0 &&
		len(p.zero) == 0 && len(p.failures) == 0
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	queryTypes      map[QueryType]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	shards          map[string]*ShardStats
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64

	unflushed   pending
	store       QueryMetricsStore
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a collector with default configuration.
// A nil store keeps metrics in memory only.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector with custom configuration.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		queryTypes:    make(map[QueryType]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		shards:        make(map[string]*ShardStats),
		startTime:     time.Now(),
		recentQueries: recentQueries,
		unflushed:     newPending(),
		store:         store,
		stopCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one answered query.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	persist := m.store != nil

	m.queryTypes[event.QueryType]++
	m.totalQueries++

	terms := ExtractTerms(event.Query)
	for _, term := range terms {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++

	key := hashQuery(event.QueryType, event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})

	if !persist {
		return
	}
	m.unflushed.types[event.QueryType]++
	m.unflushed.latencies[bucket]++
	for _, term := range terms {
		m.unflushed.terms[term]++
	}
	if event.IsZeroResult() {
		m.unflushed.zero = append(m.unflushed.zero, zeroQuery{query: event.Query, at: event.Timestamp})
	}
}

// RecordShard captures the outcome of one shard call.
func (m *QueryMetrics) RecordShard(event ShardEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	st, ok := m.shards[event.Shard]
	if !ok {
		st = &ShardStats{Latency: make(map[LatencyBucket]int64)}
		m.shards[event.Shard] = st
	}
	st.Calls++
	st.Latency[LatencyToBucket(event.Latency)]++

	if event.FailureKind == "" {
		return
	}
	if st.Failures == nil {
		st.Failures = make(map[string]int64)
	}
	st.Failures[event.FailureKind]++

	if m.store == nil {
		return
	}
	byKind, ok := m.unflushed.failures[event.Shard]
	if !ok {
		byKind = make(map[string]int64)
		m.unflushed.failures[event.Shard] = byKind
	}
	byKind[event.FailureKind]++
}

// hashQuery normalises a query for repetition detection.
func hashQuery(qt QueryType, query string) string {
	normalized := string(qt) + "\x00" + strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns current metrics for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topTerms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortStableFunc(topTerms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})

	shards := make(map[string]ShardStats, len(m.shards))
	for id, st := range m.shards {
		cp := ShardStats{Calls: st.Calls, Latency: maps.Clone(st.Latency)}
		if st.Failures != nil {
			cp.Failures = maps.Clone(st.Failures)
		}
		shards[id] = cp
	}

	var repeatRate float64
	if m.totalQueries > 0 {
		repeatRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
	}

	return &QueryMetricsSnapshot{
		QueryTypeCounts:     maps.Clone(m.queryTypes),
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: maps.Clone(m.latencies),
		Shards:              shards,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     repeatRate,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
		Since:               m.startTime,
	}
}

// Flush writes everything recorded since the previous flush to the store.
// On error the unwritten counts are kept for the next attempt. Safe to
// call without a store.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.unflushed
	m.unflushed = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}

	if err := m.write(&batch); err != nil {
		m.mu.Lock()
		m.requeue(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

// write persists p, clearing each part once it is stored so a failed
// write leaves only the remainder in p.
func (m *QueryMetrics) write(p *pending) error {
	today := time.Now().Format("2006-01-02")

	if err := m.store.SaveQueryTypeCounts(today, p.types); err != nil {
		return err
	}
	p.types = nil
	if err := m.store.UpsertTermCounts(p.terms); err != nil {
		return err
	}
	p.terms = nil
	if err := m.store.SaveLatencyCounts(today, p.latencies); err != nil {
		return err
	}
	p.latencies = nil
	if err := m.store.SaveShardFailures(today, p.failures); err != nil {
		return err
	}
	p.failures = nil
	for i, z := range p.zero {
		if err := m.store.AddZeroResultQuery(z.query, z.at); err != nil {
			p.zero = p.zero[i:]
			return err
		}
	}
	p.zero = nil
	return nil
}

// requeue merges a failed batch back. Must be called with the lock held.
func (m *QueryMetrics) requeue(p pending) {
	for k, v := range p.types {
		m.unflushed.types[k] += v
	}
	for k, v := range p.terms {
		m.unflushed.terms[k] += v
	}
	for k, v := range p.latencies {
		m.unflushed.latencies[k] += v
	}
	for shard, byKind := range p.failures {
		dst, ok := m.unflushed.failures[shard]
		if !ok {
			dst = make(map[string]int64)
			m.unflushed.failures[shard] = dst
		}
		for k, v := range byKind {
			dst[k] += v
		}
	}
	m.unflushed.zero = append(p.zero, m.unflushed.zero...)
}

// Close stops auto-flush and flushes once more.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}

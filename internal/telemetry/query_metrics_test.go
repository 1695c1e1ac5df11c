package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_KeepsInsertionOrder(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")

	assert.Equal(t, []string{"query1", "query2"}, buf.Items())
	assert.Equal(t, 2, buf.Size())
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[int](3)

	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	assert.Equal(t, []int{3, 4, 5}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_EmptyAndClear(t *testing.T) {
	buf := NewCircularBuffer[string](0)
	assert.Empty(t, buf.Items())
	assert.NotNil(t, buf.Items())

	buf.Add("x")
	buf.Clear()
	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{5 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.latency))
		})
	}
}

// =============================================================================
// QueryMetrics Tests
// =============================================================================

func TestQueryMetrics_Record_IncrementsCounts(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "apple banana", QueryType: QueryTypeTerm, ResultCount: 2, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "te*", QueryType: QueryTypePattern, ResultCount: 3, Latency: 15 * time.Millisecond})
	m.Record(QueryEvent{Query: "cherry", QueryType: QueryTypeTerm, ResultCount: 1, Latency: 5 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.QueryTypeCounts[QueryTypeTerm])
	assert.Equal(t, int64(1), snapshot.QueryTypeCounts[QueryTypePattern])
	assert.Equal(t, int64(3), snapshot.TotalQueries)
}

func TestQueryMetrics_Record_TopTermsSortedByCount(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "apple banana", QueryType: QueryTypeTerm, ResultCount: 1})
	m.Record(QueryEvent{Query: "Apple cherry", QueryType: QueryTypeTerm, ResultCount: 1})
	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 1})
	m.Record(QueryEvent{Query: "cherry", QueryType: QueryTypeTerm, ResultCount: 1})

	snapshot := m.Snapshot()
	require.Len(t, snapshot.TopTerms, 3)
	assert.Equal(t, TermCount{Term: "apple", Count: 3}, snapshot.TopTerms[0])
	assert.Equal(t, TermCount{Term: "cherry", Count: 2}, snapshot.TopTerms[1])
	assert.Equal(t, TermCount{Term: "banana", Count: 1}, snapshot.TopTerms[2])
}

func TestQueryMetrics_Record_CapturesZeroResults(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "durian", QueryType: QueryTypeTerm, ResultCount: 0})
	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 5})
	m.Record(QueryEvent{Query: "x?z", QueryType: QueryTypePattern, ResultCount: 0})

	snapshot := m.Snapshot()
	assert.Equal(t, []string{"durian", "x?z"}, snapshot.ZeroResultQueries)
	assert.Equal(t, int64(2), snapshot.ZeroResultCount)
	assert.InDelta(t, 66.67, snapshot.ZeroResultPercentage(), 0.01)
}

func TestQueryMetrics_Record_BucketsLatency(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	for _, d := range []time.Duration{5, 25, 35, 200, 1000} {
		m.Record(QueryEvent{Query: "q", QueryType: QueryTypeTerm, ResultCount: 1, Latency: d * time.Millisecond})
	}

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(2), snapshot.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketP500])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketP1000])
}

func TestQueryMetrics_RecordShard_CountsFailuresByKind(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.RecordShard(ShardEvent{Shard: "shard-1", Latency: 3 * time.Millisecond})
	m.RecordShard(ShardEvent{Shard: "shard-2", FailureKind: "timeout", Latency: 2 * time.Second})
	m.RecordShard(ShardEvent{Shard: "shard-2", FailureKind: "timeout", Latency: 2 * time.Second})
	m.RecordShard(ShardEvent{Shard: "shard-2", FailureKind: "circuit_open"})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.Shards["shard-1"].Calls)
	assert.Nil(t, snapshot.Shards["shard-1"].Failures)
	assert.Equal(t, int64(3), snapshot.Shards["shard-2"].Calls)
	assert.Equal(t, map[string]int64{"timeout": 2, "circuit_open": 1}, snapshot.Shards["shard-2"].Failures)
	assert.Equal(t, int64(2), snapshot.Shards["shard-2"].Latency[BucketP1000])
}

func TestQueryMetrics_Concurrent_ThreadSafe(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 1})
				m.RecordShard(ShardEvent{Shard: "s", Latency: time.Millisecond})
			}
		}()
	}
	wg.Wait()

	snapshot := m.Snapshot()
	assert.Equal(t, int64(5000), snapshot.TotalQueries)
	assert.Equal(t, int64(5000), snapshot.Shards["s"].Calls)
}

func TestQueryMetrics_ExactRepetition(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 1})
	m.Record(QueryEvent{Query: " APPLE ", QueryType: QueryTypeTerm, ResultCount: 1})
	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypePattern, ResultCount: 1})
	m.Record(QueryEvent{Query: "banana", QueryType: QueryTypeTerm, ResultCount: 1})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.ExactRepeatCount)
	assert.Equal(t, int64(3), snapshot.UniqueQueryCount)
	assert.InDelta(t, 0.25, snapshot.ExactRepeatRate, 0.001)
	assert.Equal(t, "repeats=25.0%, unique=3", snapshot.RepetitionSummary())
}

func TestQueryMetrics_TopTerms_LRUEviction(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{TopTermsCapacity: 3})
	defer m.Close()

	m.Record(QueryEvent{Query: "a b c d e", QueryType: QueryTypeTerm, ResultCount: 1})

	assert.Len(t, m.Snapshot().TopTerms, 3)
}

func TestQueryMetrics_RecordAfterCloseIsNoop(t *testing.T) {
	m := NewQueryMetrics(nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late", QueryType: QueryTypeTerm, ResultCount: 1})
	m.RecordShard(ShardEvent{Shard: "s"})

	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"apple", "te*"}, ExtractTerms("  Apple   TE* "))
	assert.Nil(t, ExtractTerms("   "))
}

func TestRepetitionSummary_NoQueries(t *testing.T) {
	s := &QueryMetricsSnapshot{}
	assert.Equal(t, "No queries recorded", s.RepetitionSummary())
	assert.Equal(t, 0.0, s.ZeroResultPercentage())
}

// =============================================================================
// Flush Tests
// =============================================================================

// memoryStore records what Flush hands it.
type memoryStore struct {
	mu        sync.Mutex
	types     map[QueryType]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	failures  map[string]map[string]int64
	zero      []string
	failTerms bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		types:     map[QueryType]int64{},
		terms:     map[string]int64{},
		latencies: map[LatencyBucket]int64{},
		failures:  map[string]map[string]int64{},
	}
}

func (s *memoryStore) SaveQueryTypeCounts(_ string, counts map[QueryType]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.types[k] += v
	}
	return nil
}

func (s *memoryStore) GetQueryTypeCounts(string, string) (map[QueryType]int64, error) {
	return s.types, nil
}

func (s *memoryStore) UpsertTermCounts(terms map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTerms {
		return errors.New("disk full")
	}
	for k, v := range terms {
		s.terms[k] += v
	}
	return nil
}

func (s *memoryStore) GetTopTerms(int) ([]TermCount, error) { return nil, nil }

func (s *memoryStore) AddZeroResultQuery(query string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero = append(s.zero, query)
	return nil
}

func (s *memoryStore) GetZeroResultQueries(int) ([]string, error) { return s.zero, nil }

func (s *memoryStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.latencies[k] += v
	}
	return nil
}

func (s *memoryStore) GetLatencyCounts(string, string) (map[LatencyBucket]int64, error) {
	return s.latencies, nil
}

func (s *memoryStore) SaveShardFailures(_ string, failures map[string]map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for shard, byKind := range failures {
		if s.failures[shard] == nil {
			s.failures[shard] = map[string]int64{}
		}
		for k, v := range byKind {
			s.failures[shard][k] += v
		}
	}
	return nil
}

func (s *memoryStore) Close() error { return nil }

func TestQueryMetrics_Flush_WritesOnlyDeltas(t *testing.T) {
	// Given: a collector with a store and no auto-flush
	st := newMemoryStore()
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{})
	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 0})

	// When: flushing twice with one more query in between
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 1})
	m.RecordShard(ShardEvent{Shard: "shard-2", FailureKind: "unavailable"})
	require.NoError(t, m.Flush())

	// Then: every event is persisted exactly once
	assert.Equal(t, int64(2), st.types[QueryTypeTerm])
	assert.Equal(t, int64(2), st.terms["apple"])
	assert.Equal(t, []string{"apple"}, st.zero)
	assert.Equal(t, int64(1), st.failures["shard-2"]["unavailable"])
	assert.Equal(t, int64(2), st.latencies[BucketP10])
}

func TestQueryMetrics_Flush_RetriesUnwrittenParts(t *testing.T) {
	st := newMemoryStore()
	st.failTerms = true
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{})

	m.Record(QueryEvent{Query: "apple", QueryType: QueryTypeTerm, ResultCount: 1})
	assert.Error(t, m.Flush())

	st.failTerms = false
	require.NoError(t, m.Close())

	assert.Equal(t, int64(1), st.types[QueryTypeTerm])
	assert.Equal(t, int64(1), st.terms["apple"])
}

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/search"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/store"
	"github.com/Aman-CERP/shardsearch/internal/store/storetest"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

// other is a second shard whose document 10 collides with Fruit's.
func other() storetest.Index {
	return storetest.Index{
		Documents: []store.Document{
			{ID: 10, URL: "/other/10.txt"},
			{ID: 20, URL: "/other/20.txt"},
		},
		Words: []store.Word{
			{ID: 1, Name: "banana"},
			{ID: 2, Name: "kiwi"},
		},
		Occurrences: [][2]int{
			{10, 1}, {10, 1}, {10, 1}, {10, 1}, {10, 1},
			{20, 2},
		},
	}
}

func local(t *testing.T, id string, idx storetest.Index) *shard.LocalClient {
	t.Helper()
	e, err := search.NewEngine(storetest.NewMemory(t, idx))
	require.NoError(t, err)
	return shard.NewLocalClient(id, e)
}

// fakeClient answers with canned functions and counts calls.
type fakeClient struct {
	id      string
	calls   atomic.Int32
	search  func(context.Context) (*protocol.SearchResponse, error)
	pattern func(context.Context) (*protocol.PatternResponse, error)
	health  func(context.Context) (*protocol.HealthResponse, error)
}

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) Search(ctx context.Context, _ protocol.SearchRequest) (*protocol.SearchResponse, error) {
	f.calls.Add(1)
	return f.search(ctx)
}

func (f *fakeClient) PatternSearch(ctx context.Context, _ protocol.PatternRequest) (*protocol.PatternResponse, error) {
	f.calls.Add(1)
	return f.pattern(ctx)
}

func (f *fakeClient) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	f.calls.Add(1)
	return f.health(ctx)
}

// stuck ignores its context and blocks until the test ends.
func stuck(t *testing.T, id string) *fakeClient {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return &fakeClient{
		id: id,
		search: func(context.Context) (*protocol.SearchResponse, error) {
			<-release
			return nil, nil
		},
		pattern: func(context.Context) (*protocol.PatternResponse, error) {
			<-release
			return nil, nil
		},
		health: func(context.Context) (*protocol.HealthResponse, error) {
			<-release
			return nil, nil
		},
	}
}

func failing(id string, err error) *fakeClient {
	return &fakeClient{
		id:      id,
		search:  func(context.Context) (*protocol.SearchResponse, error) { return nil, err },
		pattern: func(context.Context) (*protocol.PatternResponse, error) { return nil, err },
		health:  func(context.Context) (*protocol.HealthResponse, error) { return nil, err },
	}
}

func newCoordinator(t *testing.T, shards []shard.Client, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(shards, opts...)
	require.NoError(t, err)
	return c
}

func hitKeys(hits []protocol.DocumentHit) []string {
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = fmt.Sprintf("%s/%d", h.Document.Shard, h.Document.ID)
	}
	return keys
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoShards)

	_, err = New([]shard.Client{failing("a", nil), failing("a", nil)})
	assert.ErrorContains(t, err, "duplicate shard id")
}

func TestSearch_MergesAndQualifiesByShard(t *testing.T) {
	// Given: two shards that both hold a document 10
	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		local(t, "b", other()),
	})

	// When: searching apple and banana
	resp, err := c.Search(context.Background(), protocol.NewSearchRequest("apple banana"))
	require.NoError(t, err)

	// Then: hits are ranked across shards and stay distinguishable
	require.Len(t, resp.DocumentHits, 3)
	assert.Equal(t, "b", resp.DocumentHits[0].Document.Shard)
	assert.Equal(t, 10, resp.DocumentHits[0].Document.ID)
	assert.Equal(t, 5, resp.DocumentHits[0].NoOfHits)
	assert.Equal(t, "a", resp.DocumentHits[1].Document.Shard)
	assert.Equal(t, 10, resp.DocumentHits[1].Document.ID)
	assert.Equal(t, "a", resp.DocumentHits[2].Document.Shard)
	assert.Equal(t, 11, resp.DocumentHits[2].Document.ID)

	assert.Equal(t, 3, resp.TotalDocuments)
	assert.Equal(t, 3, resp.ReturnedDocuments)
	assert.False(t, resp.IsTruncated)
	assert.Equal(t, 11, resp.TotalHits)
	assert.Equal(t, 11, resp.ReturnedHits)
	assert.Equal(t, []string{"apple", "banana"}, resp.Query)
	assert.Equal(t, DefaultInstanceID, resp.InstanceID)

	// apple is unknown to b but known to a
	assert.Equal(t, []string{}, resp.Ignored)
}

func TestSearch_IgnoredIsIntersection(t *testing.T) {
	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		local(t, "b", other()),
	})

	resp, err := c.Search(context.Background(), protocol.NewSearchRequest("apple kiwi durian"))
	require.NoError(t, err)

	assert.Equal(t, []string{"durian"}, resp.Ignored)
}

func TestSearch_OneShardTimesOut(t *testing.T) {
	// Given: three shards, one of which never answers
	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		stuck(t, "slow"),
		local(t, "b", other()),
	}, WithShardTimeout(100*time.Millisecond))

	// When: searching
	start := time.Now()
	resp, err := c.Search(context.Background(), protocol.NewSearchRequest("apple banana"))
	elapsed := time.Since(start)

	// Then: the request succeeds within the timeout, merged from the other two
	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 3, resp.TotalDocuments)
	assert.Equal(t, 11, resp.TotalHits)

	require.Len(t, resp.Shards, 3)
	assert.True(t, resp.Shards[0].OK)
	assert.False(t, resp.Shards[1].OK)
	assert.Equal(t, "slow", resp.Shards[1].Shard)
	assert.Equal(t, string(shard.KindTimeout), resp.Shards[1].Kind)
	assert.Equal(t, serrors.ErrCodeShardTimeout, resp.Shards[1].Code)
	assert.True(t, resp.Shards[2].OK)
}

func TestSearch_AllShardsFail(t *testing.T) {
	c := newCoordinator(t, []shard.Client{
		failing("a", shard.NewFailure("a", shard.KindUnavailable, errors.New("refused"))),
		failing("b", errors.New("untyped")),
	})

	resp, err := c.Search(context.Background(), protocol.NewSearchRequest("apple"))
	require.NoError(t, err)

	assert.Equal(t, 0, resp.TotalDocuments)
	assert.Empty(t, resp.DocumentHits)
	assert.NotNil(t, resp.DocumentHits)
	assert.Equal(t, []string{}, resp.Ignored)
	assert.Equal(t, string(shard.KindUnavailable), resp.Shards[0].Kind)
	assert.Equal(t, string(shard.KindServerError), resp.Shards[1].Kind)
}

func TestSearch_PanickingAndEmptyClients(t *testing.T) {
	boom := &fakeClient{
		id: "boom",
		search: func(context.Context) (*protocol.SearchResponse, error) {
			panic("nil map")
		},
	}
	empty := &fakeClient{
		id:     "empty",
		search: func(context.Context) (*protocol.SearchResponse, error) { return nil, nil },
	}
	c := newCoordinator(t, []shard.Client{boom, empty, local(t, "a", storetest.Fruit())})

	resp, err := c.Search(context.Background(), protocol.NewSearchRequest("cherry"))
	require.NoError(t, err)

	assert.Equal(t, string(shard.KindServerError), resp.Shards[0].Kind)
	assert.Equal(t, string(shard.KindBadResponse), resp.Shards[1].Kind)
	assert.Equal(t, 1, resp.TotalDocuments)
}

func TestSearch_InvalidRequestNeverFansOut(t *testing.T) {
	f := failing("a", nil)
	c := newCoordinator(t, []shard.Client{f})

	_, err := c.Search(context.Background(), protocol.NewSearchRequest("  "))
	assert.Equal(t, serrors.ErrCodeQueryEmpty, serrors.GetCode(err))

	_, err = c.PatternSearch(context.Background(), protocol.NewPatternRequest(""))
	assert.Equal(t, serrors.ErrCodePatternEmpty, serrors.GetCode(err))

	assert.Equal(t, int32(0), f.calls.Load())
}

func TestSearch_LimitAppliesPerShard(t *testing.T) {
	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		local(t, "b", other()),
	})

	req := protocol.NewSearchRequest("apple banana kiwi")
	req.Limit = 1
	resp, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	// One document from each shard; the merge does not cut again.
	assert.Equal(t, 2, resp.ReturnedDocuments)
	assert.Equal(t, 4, resp.TotalDocuments)
	assert.True(t, resp.IsTruncated)
}

func TestSearch_Idempotent(t *testing.T) {
	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		local(t, "b", other()),
	})
	ctx := context.Background()
	req := protocol.NewSearchRequest("banana apple kiwi")

	first, err := c.Search(ctx, req)
	require.NoError(t, err)
	second, err := c.Search(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, hitKeys(first.DocumentHits), hitKeys(second.DocumentHits))
}

func TestPatternSearch_MergesByMatchingWords(t *testing.T) {
	// Given: two shards with canned pattern answers
	x := &fakeClient{id: "x", pattern: func(context.Context) (*protocol.PatternResponse, error) {
		return &protocol.PatternResponse{
			TotalDocuments: 3, ReturnedDocuments: 2, TotalHits: 4, ReturnedHits: 3,
			Hits: []protocol.PatternHit{
				{Document: protocol.Document{ID: 2}, MatchingWords: []string{"ta", "te"}},
				{Document: protocol.Document{ID: 1}, MatchingWords: []string{"ta"}},
			},
		}, nil
	}}
	y := &fakeClient{id: "y", pattern: func(context.Context) (*protocol.PatternResponse, error) {
		return &protocol.PatternResponse{
			TotalDocuments: 1, ReturnedDocuments: 1, TotalHits: 3, ReturnedHits: 3,
			Hits: []protocol.PatternHit{
				{Document: protocol.Document{ID: 1}, MatchingWords: []string{"ta", "te", "ti"}},
			},
		}, nil
	}}
	c := newCoordinator(t, []shard.Client{x, y})

	// When
	resp, err := c.PatternSearch(context.Background(), protocol.NewPatternRequest("t?"))
	require.NoError(t, err)

	// Then: broadest match first, shard-qualified, totals summed
	require.Len(t, resp.Hits, 3)
	assert.Equal(t, "y", resp.Hits[0].Document.Shard)
	assert.Equal(t, "x", resp.Hits[1].Document.Shard)
	assert.Equal(t, 2, resp.Hits[1].Document.ID)
	assert.Equal(t, 1, resp.Hits[2].Document.ID)
	assert.Equal(t, 4, resp.TotalDocuments)
	assert.Equal(t, 7, resp.TotalHits)
	assert.Equal(t, 6, resp.ReturnedHits)
	assert.True(t, resp.IsTruncated)
	assert.Equal(t, "t?", resp.Pattern)
}

func TestPatternSearch_LocalShards(t *testing.T) {
	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		local(t, "b", other()),
	})

	resp, err := c.PatternSearch(context.Background(), protocol.NewPatternRequest("BAN*"))
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalDocuments)
	for _, h := range resp.Hits {
		assert.Equal(t, []string{"banana"}, h.MatchingWords)
	}
}

func TestHealth(t *testing.T) {
	down := failing("down", shard.NewFailure("down", shard.KindUnavailable, errors.New("refused")))

	tests := []struct {
		name    string
		shards  []shard.Client
		status  string
		healthy int
	}{
		{"all up", []shard.Client{local(t, "a", storetest.Fruit())}, protocol.StatusOK, 1},
		{"one down", []shard.Client{local(t, "a", storetest.Fruit()), down}, protocol.StatusDegraded, 1},
		{"all down", []shard.Client{down}, protocol.StatusDown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCoordinator(t, tt.shards).Health(context.Background())

			assert.Equal(t, tt.status, h.Status)
			assert.Equal(t, tt.healthy, h.Healthy)
			assert.Equal(t, len(tt.shards), h.Total)
			assert.Len(t, h.Shards, len(tt.shards))
		})
	}
}

func TestSearch_RecordsShardMetrics(t *testing.T) {
	m := telemetry.NewQueryMetrics(nil)
	defer m.Close()

	c := newCoordinator(t, []shard.Client{
		local(t, "a", storetest.Fruit()),
		stuck(t, "slow"),
	}, WithShardTimeout(50*time.Millisecond), WithMetrics(m))

	_, err := c.Search(context.Background(), protocol.NewSearchRequest("apple"))
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Shards["a"].Calls)
	assert.Empty(t, snap.Shards["a"].Failures)
	assert.Equal(t, int64(1), snap.Shards["slow"].Failures["timeout"])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[telemetry.QueryTypeTerm])
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"b", "d"}, intersect([]string{"a", "b", "c", "d"}, []string{"d", "b"}))
	assert.Empty(t, intersect([]string{"a"}, nil))
}

func TestShardIDs(t *testing.T) {
	c := newCoordinator(t, []shard.Client{failing("a", nil), failing("b", nil)})
	assert.Equal(t, []string{"a", "b"}, c.ShardIDs())
}

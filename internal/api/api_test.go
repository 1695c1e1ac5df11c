package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/shardsearch/internal/config"
	"github.com/Aman-CERP/shardsearch/internal/coordinator"
	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/search"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/store"
	"github.com/Aman-CERP/shardsearch/internal/store/storetest"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

func newEngine(t *testing.T) *search.Engine {
	t.Helper()
	e, err := search.NewEngine(storetest.NewSQLite(t, storetest.Fruit()))
	require.NoError(t, err)
	return e
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestShardHandler_Search(t *testing.T) {
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "shard-a"})

	// Given: the apple/banana index
	// When: searching both terms without timestamps
	rec := get(t, h, "/api/search?query=apple+banana&includeTimestamps=false")

	// Then: both documents tie at 3 and the lower id comes first
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.SearchResponse](t, rec)
	assert.Equal(t, "shard-a", resp.InstanceID)
	require.Len(t, resp.DocumentHits, 2)
	assert.Equal(t, 10, resp.DocumentHits[0].Document.ID)
	assert.Equal(t, []string{"banana"}, resp.DocumentHits[0].Missing)
	assert.Empty(t, resp.DocumentHits[0].Document.IndexTime)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestShardHandler_DefaultLimit(t *testing.T) {
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "a", DefaultLimit: 1})

	resp := decode[protocol.SearchResponse](t, get(t, h, "/api/search?query=apple"))
	assert.Equal(t, 1, resp.ReturnedDocuments)
	assert.True(t, resp.IsTruncated)

	resp = decode[protocol.SearchResponse](t, get(t, h, "/api/search?query=apple&limit=all"))
	assert.Equal(t, 2, resp.ReturnedDocuments)
}

func TestShardHandler_Pattern(t *testing.T) {
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "a"})

	rec := get(t, h, "/api/search/pattern?pattern=*an*")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.PatternResponse](t, rec)
	assert.Equal(t, "*an*", resp.Pattern)
	assert.Equal(t, 1, resp.TotalDocuments)
}

func TestShardHandler_PatternWithSpaceFindsNothing(t *testing.T) {
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "a"})

	// Given: a pattern no single vocabulary word can match
	// When
	rec := get(t, h, "/api/search/pattern?pattern=hello%20world")

	// Then: it is a valid request with an empty result
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[protocol.PatternResponse](t, rec)
	assert.Equal(t, "hello world", resp.Pattern)
	assert.Equal(t, 0, resp.TotalDocuments)
	assert.Equal(t, 0, resp.TotalHits)
	assert.Empty(t, resp.Hits)
}

func TestShardHandler_ValidationErrors(t *testing.T) {
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "a"})

	tests := []struct {
		target string
		code   string
	}{
		{"/api/search", serrors.ErrCodeQueryEmpty},
		{"/api/search?query=a&limit=-3", serrors.ErrCodeInvalidLimit},
		{"/api/search/pattern?pattern=", serrors.ErrCodePatternEmpty},
		{"/api/stats?top=x", serrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[serrors.ClientError](t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, rec.Header().Get(HeaderRequestID), body.RequestID)
		})
	}
}

func TestShardHandler_StoreFailureIsOpaque(t *testing.T) {
	// Given: a store that has been closed underneath the handler
	s := storetest.NewSQLite(t, storetest.Fruit())
	e, err := search.NewEngine(s)
	require.NoError(t, err)
	h := NewShardHandler(e, ShardOptions{InstanceID: "a"})
	require.NoError(t, s.Close())

	// When
	rec := get(t, h, "/api/search?query=apple")

	// Then: a coded 500 that does not leak the cause
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[serrors.ClientError](t, rec)
	assert.Equal(t, serrors.ErrCodeStoreQuery, body.Code)
	assert.NotContains(t, rec.Body.String(), store.ErrClosed.Error())

	health := get(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, health.Code)
	assert.Equal(t, protocol.StatusDown, decode[protocol.HealthResponse](t, health).Status)
}

func TestShardHandler_StatsAndMetrics(t *testing.T) {
	m := telemetry.NewQueryMetrics(nil)
	defer m.Close()
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "a", Metrics: m})

	st := decode[protocol.StatsResponse](t, get(t, h, "/api/stats?top=1"))
	assert.Equal(t, 3, st.Documents)
	assert.Equal(t, 7, st.Occurrences)
	assert.Equal(t, []protocol.WordCount{{Word: "apple", Count: 4}}, st.TopWords)

	rec := get(t, h, "/api/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShardHandler_UnknownPathAndMethod(t *testing.T) {
	h := NewShardHandler(newEngine(t), ShardOptions{InstanceID: "a"})

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/nope").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search?query=a", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// cluster starts two shard services and a coordinator handler over them.
func cluster(t *testing.T, opts CoordinatorOptions) http.Handler {
	t.Helper()

	var eps []config.ShardEndpoint
	for _, id := range []string{"a", "b"} {
		srv := httptest.NewServer(NewShardHandler(newEngine(t), ShardOptions{InstanceID: id}))
		t.Cleanup(srv.Close)
		eps = append(eps, config.ShardEndpoint{ID: id, URL: srv.URL})
	}

	cfg := config.NewConfig().Coordinator
	cfg.Shards = eps
	clients, err := shard.NewHTTPClients(cfg)
	require.NoError(t, err)
	coord, err := coordinator.New(clients, coordinator.WithMetrics(opts.Metrics))
	require.NoError(t, err)

	return NewCoordinatorHandler(coord, opts)
}

func TestCoordinatorHandler_EndToEnd(t *testing.T) {
	m := telemetry.NewQueryMetrics(nil)
	defer m.Close()
	h := cluster(t, CoordinatorOptions{Metrics: m})

	// Given: two identical shards
	// When: searching through the coordinator
	rec := get(t, h, "/api/coordinator?query=apple")

	// Then: every document appears once per shard, qualified by shard id
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[protocol.SearchResponse](t, rec)
	assert.Equal(t, 4, resp.TotalDocuments)
	require.Len(t, resp.DocumentHits, 4)
	assert.Equal(t, "a", resp.DocumentHits[0].Document.Shard)
	assert.Equal(t, "b", resp.DocumentHits[1].Document.Shard)
	assert.Equal(t, 3, resp.DocumentHits[1].NoOfHits)
	require.Len(t, resp.Shards, 2)
	assert.True(t, resp.Shards[0].OK)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	pr := decode[protocol.PatternResponse](t, get(t, h, "/api/coordinator/pattern?pattern=ch*"))
	assert.Equal(t, 2, pr.TotalDocuments)

	snap := decode[telemetry.QueryMetricsSnapshot](t, get(t, h, "/api/coordinator/metrics"))
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.Shards["a"].Calls)
}

func TestCoordinatorHandler_PingAndHealth(t *testing.T) {
	h := cluster(t, CoordinatorOptions{})

	ping := get(t, h, "/api/coordinator/ping")
	assert.Equal(t, http.StatusOK, ping.Code)
	assert.Equal(t, PingReply, ping.Body.String())

	health := decode[protocol.ClusterHealth](t, get(t, h, "/api/coordinator/health"))
	assert.Equal(t, protocol.StatusOK, health.Status)
	assert.Equal(t, 2, health.Healthy)
	assert.Equal(t, "closed", health.Shards[0].Breaker)
}

func TestCoordinatorHandler_RateLimit(t *testing.T) {
	h := cluster(t, CoordinatorOptions{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, get(t, h, "/api/coordinator?query=apple").Code)

	rec := get(t, h, "/api/coordinator?query=apple")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode[serrors.ClientError](t, rec)
	assert.Equal(t, serrors.ErrCodeRateLimited, body.Code)
	assert.Equal(t, "rate limit exceeded, retry later", body.Message)

	// ping is not rate limited
	assert.Equal(t, http.StatusOK, get(t, h, "/api/coordinator/ping").Code)
}

func TestCoordinatorHandler_CORSPreflight(t *testing.T) {
	h := cluster(t, CoordinatorOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/coordinator", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCoordinatorHandler_SlotWaitTimesOut(t *testing.T) {
	// Given: one fan-out slot, already taken
	coord, err := coordinator.New([]shard.Client{shard.NewLocalClient("a", newEngine(t))})
	require.NoError(t, err)
	h := &coordinatorHandler{coord: coord, logger: slog.New(slog.DiscardHandler), inFlight: semaphore.NewWeighted(1)}
	require.NoError(t, h.inFlight.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/coordinator?query=apple", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	// When
	h.search(rec, req)

	// Then: the request fails with an opaque 500
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, serrors.ErrCodeSearchFailed, decode[serrors.ClientError](t, rec).Code)
}

func TestRequestID_ReusesValidIncomingID(t *testing.T) {
	var seen string
	h := withRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRecover_TurnsPanicInto500(t *testing.T) {
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), withRequestID, withRecover(slog.New(slog.DiscardHandler)))

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[serrors.ClientError](t, rec)
	assert.Equal(t, serrors.ErrCodeInternal, body.Code)
	assert.Equal(t, "internal error", body.Message)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests,
		statusFor(serrors.ValidationError(serrors.ErrCodeRateLimited, "slow down")))
	assert.Equal(t, http.StatusBadRequest,
		statusFor(serrors.ValidationError(serrors.ErrCodeQueryEmpty, "empty")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestServer_ServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer("test", "127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), 4)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	addr := <-srv.Ready()
	resp, err := http.Get("http://" + addr.String())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClient_AgainstCoordinator(t *testing.T) {
	srv := httptest.NewServer(cluster(t, CoordinatorOptions{RateLimit: 0.001, RateBurst: 2}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	// Given: a coordinator with a burst of two queries
	// When: searching, then pattern searching
	resp, err := c.Search(ctx, protocol.NewSearchRequest("apple"))
	require.NoError(t, err)
	assert.Equal(t, 4, resp.TotalDocuments)

	pr, err := c.PatternSearch(ctx, protocol.NewPatternRequest("ch*"))
	require.NoError(t, err)
	assert.Equal(t, 2, pr.TotalDocuments)

	// Then: the third query carries the service's rate limit code
	_, err = c.Search(ctx, protocol.NewSearchRequest("apple"))
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeRateLimited, serrors.GetCode(err))

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, health.Status)
}

func TestClient_ValidatesLocally(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", time.Second)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), protocol.NewSearchRequest(" "))
	assert.True(t, serrors.IsValidation(err))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), protocol.NewSearchRequest("apple"))
	assert.Equal(t, serrors.ErrCodeSearchFailed, serrors.GetCode(err))
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:8080", time.Second)
	assert.Equal(t, serrors.ErrCodeConfigInvalid, serrors.GetCode(err))
}

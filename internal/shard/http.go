package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Aman-CERP/shardsearch/internal/config"
	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/pkg/version"
)

// Shard service paths.
const (
	PathSearch  = "/api/search"
	PathPattern = "/api/search/pattern"
	PathHealth  = "/api/health"
	PathStats   = "/api/stats"
)

// maxResponseBytes caps a shard response body. An unlimited query on a
// large shard stays well below it.
const maxResponseBytes = 64 << 20

// HTTPClient queries a remote shard service. Each call is bounded by the
// client timeout and guarded by a per-shard circuit breaker. Calls are
// never retried.
type HTTPClient struct {
	id      string
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	breaker *serrors.CircuitBreaker
	logger  *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout bounds each shard call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(cb *serrors.CircuitBreaker) HTTPOption {
	return func(c *HTTPClient) {
		c.breaker = cb
	}
}

// WithLogger sets the logger for failed calls.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a client for the shard at ep.
func NewHTTPClient(ep config.ShardEndpoint, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(ep.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid url for shard %s: %w", ep.ID, err)
	}

	c := &HTTPClient{
		id:      ep.ID,
		base:    base,
		http:    &http.Client{},
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = serrors.NewCircuitBreaker(ep.ID)
	}
	return c, nil
}

// NewHTTPClients creates a client per configured shard.
func NewHTTPClients(cfg config.CoordinatorConfig, opts ...HTTPOption) ([]Client, error) {
	clients := make([]Client, 0, len(cfg.Shards))
	for _, ep := range cfg.Shards {
		breaker := serrors.NewCircuitBreaker(ep.ID,
			serrors.WithMaxFailures(cfg.Breaker.MaxFailures),
			serrors.WithResetTimeout(cfg.Breaker.ResetTimeout))

		all := append([]HTTPOption{WithTimeout(cfg.ShardTimeout), WithBreaker(breaker)}, opts...)
		c, err := NewHTTPClient(ep, all...)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// ID returns the shard id.
func (c *HTTPClient) ID() string {
	return c.id
}

// BreakerState returns the circuit breaker state.
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

// Search sends a term query to the shard.
func (c *HTTPClient) Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	var resp protocol.SearchResponse
	if err := c.guarded(ctx, PathSearch, req.Values(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PatternSearch sends a wildcard query to the shard.
func (c *HTTPClient) PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error) {
	var resp protocol.PatternResponse
	if err := c.guarded(ctx, PathPattern, req.Values(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the shard. It bypasses the circuit breaker so an open
// circuit does not hide a recovered shard.
func (c *HTTPClient) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var resp protocol.HealthResponse
	if err := c.get(ctx, PathHealth, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats fetches index statistics from the shard.
func (c *HTTPClient) Stats(ctx context.Context, top int) (*protocol.StatsResponse, error) {
	var resp protocol.StatsResponse
	v := url.Values{}
	v.Set("top", fmt.Sprint(top))
	if err := c.get(ctx, PathStats, v, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) guarded(ctx context.Context, path string, v url.Values, out checkable) error {
	if !c.breaker.Allow() {
		return NewFailure(c.id, KindCircuitOpen, serrors.ErrCircuitOpen)
	}

	if err := c.get(ctx, path, v, out); err != nil {
		c.breaker.RecordFailure()
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

// checkable is a decoded response that can check its own consistency.
type checkable interface {
	Validate() error
}

func (c *HTTPClient) get(ctx context.Context, path string, v url.Values, out checkable) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath(path)
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return c.fail(NewFailure(c.id, KindServerError, err), path, start)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(Classify(c.id, err), path, start)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return c.fail(Classify(c.id, err), path, start)
	}
	if len(body) > maxResponseBytes {
		return c.fail(NewFailure(c.id, KindBadResponse,
			fmt.Errorf("response exceeds %d bytes", maxResponseBytes)), path, start)
	}

	switch {
	case resp.StatusCode >= 500:
		return c.fail(NewFailure(c.id, KindServerError,
			fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))), path, start)
	case resp.StatusCode != http.StatusOK:
		return c.fail(NewFailure(c.id, KindBadResponse,
			fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))), path, start)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(NewFailure(c.id, KindBadResponse, fmt.Errorf("decode: %w", err)), path, start)
	}
	if err := out.Validate(); err != nil {
		return c.fail(NewFailure(c.id, KindBadResponse, err), path, start)
	}
	return nil
}

func (c *HTTPClient) fail(f *Failure, path string, start time.Time) *Failure {
	c.logger.Warn("shard_call_failed",
		slog.String("shard", c.id),
		slog.String("path", path),
		slog.String("kind", string(f.Kind)),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("error", fmt.Sprint(f.Cause)))
	return f
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/pkg/version"
)

// Client calls a coordinator service. Errors the service reports keep
// their code, so validation failures stay distinguishable.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for the coordinator at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, serrors.New(serrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid coordinator url %q", baseURL), err)
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// Search runs a term search across the cluster.
func (c *Client) Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp protocol.SearchResponse
	if err := c.get(ctx, PathCoordinator, req.Values(), &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PatternSearch runs a wildcard search across the cluster.
func (c *Client) PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp protocol.PatternResponse
	if err := c.get(ctx, PathCoordinatorPattern, req.Values(), &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns per-shard health. A cluster that is down is a result,
// not an error.
func (c *Client) Health(ctx context.Context) (*protocol.ClusterHealth, error) {
	var resp protocol.ClusterHealth
	if err := c.get(ctx, PathCoordinatorHealth, nil, &resp, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, v url.Values, out any, accept ...int) error {
	u := c.base.JoinPath(path)
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return serrors.InternalError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return serrors.New(serrors.ErrCodeSearchFailed,
			fmt.Sprintf("coordinator %s unreachable", c.base.Host), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return serrors.New(serrors.ErrCodeSearchFailed, "read coordinator response", err)
	}

	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.Unmarshal(body, out); err != nil {
				return serrors.New(serrors.ErrCodeSearchFailed, "decode coordinator response", err)
			}
			return nil
		}
	}

	var ce serrors.ClientError
	if json.Unmarshal(body, &ce) == nil && ce.Code != "" {
		return serrors.New(ce.Code, ce.Message, nil).
			WithDetail("request_id", ce.RequestID)
	}
	return serrors.New(serrors.ErrCodeSearchFailed,
		fmt.Sprintf("coordinator returned status %d", resp.StatusCode), nil)
}

package shard

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/search"
)

// Client queries one shard. Every non-nil error is a *Failure.
type Client interface {
	ID() string
	Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
	PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error)
	Health(ctx context.Context) (*protocol.HealthResponse, error)
}

// BreakerReporter is implemented by clients guarded by a circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

// LocalClient answers queries from an in-process engine.
type LocalClient struct {
	id     string
	engine *search.Engine
	logger *slog.Logger
}

// NewLocalClient creates a client named id over engine.
func NewLocalClient(id string, engine *search.Engine) *LocalClient {
	return &LocalClient{id: id, engine: engine, logger: slog.Default()}
}

// ID returns the shard id.
func (c *LocalClient) ID() string {
	return c.id
}

// Search runs a term query on the local engine.
func (c *LocalClient) Search(ctx context.Context, req protocol.SearchRequest) (resp *protocol.SearchResponse, err error) {
	defer c.recoverPanic(&err)

	res, err := c.engine.Search(ctx, req.Terms(), search.Options{
		Limit:         req.Limit,
		CaseSensitive: req.CaseSensitive,
	})
	if err != nil {
		return nil, Classify(c.id, err)
	}
	return protocol.FromResult(c.id, res, req.IncludeTimestamps), nil
}

// PatternSearch runs a wildcard query on the local engine.
func (c *LocalClient) PatternSearch(ctx context.Context, req protocol.PatternRequest) (resp *protocol.PatternResponse, err error) {
	defer c.recoverPanic(&err)

	res, err := c.engine.PatternSearch(ctx, req.Pattern, search.Options{
		Limit:         req.Limit,
		CaseSensitive: req.CaseSensitive,
	})
	if err != nil {
		return nil, Classify(c.id, err)
	}
	return protocol.FromPatternResult(c.id, res), nil
}

// Health reports the local shard as up unless its store is closed.
func (c *LocalClient) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	if _, err := c.engine.Store().WordNames(ctx, nil); err != nil {
		return nil, Classify(c.id, err)
	}
	return &protocol.HealthResponse{
		InstanceID: c.id,
		Status:     protocol.StatusOK,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (c *LocalClient) recoverPanic(err *error) {
	r := recover()
	if r == nil {
		return
	}
	c.logger.Error("shard_panic",
		slog.String("shard", c.id),
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())))
	*err = NewFailure(c.id, KindServerError, fmt.Errorf("panic: %v", r))
}

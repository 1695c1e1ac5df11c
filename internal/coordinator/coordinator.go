// Package coordinator fans a query out to every shard, waits for all of
// them, and merges the partial results into one ranked answer. A shard
// that fails or exceeds its timeout contributes nothing; the request
// still succeeds.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

// DefaultInstanceID names the coordinator in merged responses.
const DefaultInstanceID = "coordinator"

// ErrNoShards is returned by New when the shard list is empty.
var ErrNoShards = errors.New("no shards configured")

// Coordinator scatters queries over a fixed set of shards.
type Coordinator struct {
	instanceID string
	shards     []shard.Client
	timeout    time.Duration
	metrics    *telemetry.QueryMetrics
	logger     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithShardTimeout bounds each shard call. Zero leaves calls bounded
// only by the request context.
func WithShardTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithMetrics records query and per-shard outcomes.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithInstanceID sets the instanceId reported in merged responses.
func WithInstanceID(id string) Option {
	return func(c *Coordinator) {
		c.instanceID = id
	}
}

// New creates a coordinator over shards. Shard ids must be unique.
func New(shards []shard.Client, opts ...Option) (*Coordinator, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}
	seen := make(map[string]bool, len(shards))
	for _, s := range shards {
		if seen[s.ID()] {
			return nil, fmt.Errorf("duplicate shard id %q", s.ID())
		}
		seen[s.ID()] = true
	}

	c := &Coordinator{
		instanceID: DefaultInstanceID,
		shards:     shards,
		timeout:    2 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ShardIDs returns the configured shard ids in order.
func (c *Coordinator) ShardIDs() []string {
	ids := make([]string, len(c.shards))
	for i, s := range c.shards {
		ids[i] = s.ID()
	}
	return ids
}

// outcome is one shard's answer to a fan-out.
type outcome[T any] struct {
	shard   string
	resp    T
	failure *shard.Failure
	elapsed time.Duration
}

func (o outcome[T]) report() protocol.ShardReport {
	r := protocol.ShardReport{Shard: o.shard, OK: o.failure == nil, TimeUsed: protocol.Milliseconds(o.elapsed)}
	if o.failure != nil {
		r.Kind = string(o.failure.Kind)
		r.Code = o.failure.Code
	}
	return r
}

// fanOut calls every shard concurrently and waits for all of them. Each
// call runs under its own timeout and is abandoned when it expires, even
// if the client ignores its context. Outcomes are in shard order.
func fanOut[T any](ctx context.Context, c *Coordinator, call func(context.Context, shard.Client) (T, error)) []outcome[T] {
	outcomes := make([]outcome[T], len(c.shards))

	// Goroutines never return an error, so one failing shard cannot
	// cancel its siblings.
	var g errgroup.Group
	for i, s := range c.shards {
		g.Go(func() error {
			outcomes[i] = callShard(ctx, c.timeout, s, call)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func callShard[T any](ctx context.Context, timeout time.Duration, s shard.Client, call func(context.Context, shard.Client) (T, error)) outcome[T] {
	start := time.Now()
	id := s.ID()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		resp T
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("shard_client_panic",
					slog.String("shard", id),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				done <- result{err: shard.NewFailure(id, shard.KindServerError, fmt.Errorf("panic: %v", r))}
			}
		}()
		resp, err := call(ctx, s)
		done <- result{resp: resp, err: err}
	}()

	o := outcome[T]{shard: id}
	select {
	case r := <-done:
		o.resp = r.resp
		if r.err != nil {
			o.failure = shard.Classify(id, r.err)
		}
	case <-ctx.Done():
		o.failure = shard.Classify(id, ctx.Err())
	}
	o.elapsed = time.Since(start)
	return o
}

func (c *Coordinator) recordShards(reports []protocol.ShardReport) {
	if c.metrics == nil {
		return
	}
	for _, r := range reports {
		c.metrics.RecordShard(telemetry.ShardEvent{
			Shard:       r.Shard,
			FailureKind: r.Kind,
			Latency:     time.Duration(r.TimeUsed * float64(time.Millisecond)),
		})
	}
}

func (c *Coordinator) recordQuery(qt telemetry.QueryType, query string, results int, latency time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		ResultCount: results,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

func (c *Coordinator) logDegraded(op string, reports []protocol.ShardReport) {
	failed := 0
	for _, r := range reports {
		if !r.OK {
			failed++
		}
	}
	if failed == 0 {
		return
	}
	c.logger.Warn("coordinator_degraded",
		slog.String("op", op),
		slog.Int("failed_shards", failed),
		slog.Int("total_shards", len(reports)))
}

package coordinator

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

var errEmptyResponse = errors.New("shard returned no response")

// Search runs a term query on every shard and merges the answers. The
// only error is an invalid request; shard failures degrade the result
// and are listed in its shard report.
func (c *Coordinator) Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	outcomes := fanOut(ctx, c, func(ctx context.Context, s shard.Client) (*protocol.SearchResponse, error) {
		return s.Search(ctx, req)
	})

	merged := &protocol.SearchResponse{
		InstanceID:   c.instanceID,
		Query:        req.Terms(),
		DocumentHits: []protocol.DocumentHit{},
		Ignored:      []string{},
		Shards:       make([]protocol.ShardReport, 0, len(outcomes)),
	}

	var ignored []string
	answered := false
	for _, o := range outcomes {
		if o.failure == nil && o.resp == nil {
			o.failure = shard.NewFailure(o.shard, shard.KindBadResponse, errEmptyResponse)
		}
		merged.Shards = append(merged.Shards, o.report())
		if o.failure != nil {
			continue
		}
		r := o.resp
		merged.TotalDocuments += r.TotalDocuments
		merged.TotalHits += r.TotalHits
		merged.ReturnedHits += r.ReturnedHits
		for _, h := range r.DocumentHits {
			h.Document.Shard = o.shard
			merged.DocumentHits = append(merged.DocumentHits, h)
		}

		if !answered {
			ignored = slices.Clone(r.Ignored)
			answered = true
		} else {
			ignored = intersect(ignored, r.Ignored)
		}
	}
	if len(ignored) > 0 {
		merged.Ignored = ignored
	}

	slices.SortStableFunc(merged.DocumentHits, func(a, b protocol.DocumentHit) int {
		return cmp.Compare(b.NoOfHits, a.NoOfHits)
	})
	merged.ReturnedDocuments = len(merged.DocumentHits)
	merged.IsTruncated = merged.ReturnedDocuments < merged.TotalDocuments

	elapsed := time.Since(start)
	merged.TimeUsed = protocol.Milliseconds(elapsed)

	c.recordShards(merged.Shards)
	c.recordQuery(telemetry.QueryTypeTerm, strings.Join(merged.Query, " "), merged.ReturnedDocuments, elapsed)
	c.logDegraded("search", merged.Shards)
	return merged, nil
}

// PatternSearch runs a wildcard query on every shard and merges the
// answers by number of distinct matching words.
func (c *Coordinator) PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	outcomes := fanOut(ctx, c, func(ctx context.Context, s shard.Client) (*protocol.PatternResponse, error) {
		return s.PatternSearch(ctx, req)
	})

	merged := &protocol.PatternResponse{
		InstanceID: c.instanceID,
		Pattern:    req.Pattern,
		Hits:       []protocol.PatternHit{},
		Shards:     make([]protocol.ShardReport, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		if o.failure == nil && o.resp == nil {
			o.failure = shard.NewFailure(o.shard, shard.KindBadResponse, errEmptyResponse)
		}
		merged.Shards = append(merged.Shards, o.report())
		if o.failure != nil {
			continue
		}
		r := o.resp
		merged.TotalDocuments += r.TotalDocuments
		merged.TotalHits += r.TotalHits
		merged.ReturnedHits += r.ReturnedHits
		for _, h := range r.Hits {
			h.Document.Shard = o.shard
			merged.Hits = append(merged.Hits, h)
		}
	}

	slices.SortStableFunc(merged.Hits, func(a, b protocol.PatternHit) int {
		return cmp.Compare(len(b.MatchingWords), len(a.MatchingWords))
	})
	merged.ReturnedDocuments = len(merged.Hits)
	merged.IsTruncated = merged.ReturnedDocuments < merged.TotalDocuments

	elapsed := time.Since(start)
	merged.TimeUsed = protocol.Milliseconds(elapsed)

	c.recordShards(merged.Shards)
	c.recordQuery(telemetry.QueryTypePattern, merged.Pattern, merged.ReturnedDocuments, elapsed)
	c.logDegraded("pattern", merged.Shards)
	return merged, nil
}

// Health checks every shard concurrently.
func (c *Coordinator) Health(ctx context.Context) *protocol.ClusterHealth {
	outcomes := fanOut(ctx, c, func(ctx context.Context, s shard.Client) (*protocol.HealthResponse, error) {
		return s.Health(ctx)
	})

	h := &protocol.ClusterHealth{
		Total:     len(outcomes),
		Shards:    make([]protocol.ShardHealth, 0, len(outcomes)),
		Timestamp: time.Now().UTC(),
	}
	for i, o := range outcomes {
		if o.failure == nil && o.resp == nil {
			o.failure = shard.NewFailure(o.shard, shard.KindBadResponse, errEmptyResponse)
		}
		sh := protocol.ShardHealth{
			Shard:    o.shard,
			Status:   protocol.StatusDown,
			TimeUsed: protocol.Milliseconds(o.elapsed),
		}
		if br, ok := c.shards[i].(shard.BreakerReporter); ok {
			sh.Breaker = br.BreakerState()
		}
		if o.failure != nil {
			sh.Kind = string(o.failure.Kind)
			sh.Code = o.failure.Code
		} else {
			sh.Status = o.resp.Status
			sh.InstanceID = o.resp.InstanceID
			if sh.Status == protocol.StatusOK {
				h.Healthy++
			}
		}
		h.Shards = append(h.Shards, sh)
	}

	switch h.Healthy {
	case h.Total:
		h.Status = protocol.StatusOK
	case 0:
		h.Status = protocol.StatusDown
	default:
		h.Status = protocol.StatusDegraded
	}
	return h
}

// intersect keeps the entries of a that also occur in b, in a's order.
func intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	out := a[:0]
	for _, s := range a {
		if _, ok := in[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	URIClusterHealth = "shardsearch://cluster_health"
	URIQueryMetrics  = "shardsearch://query_metrics"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "cluster_health",
		URI:         URIClusterHealth,
		Description: "Health of every configured shard",
		MIMEType:    "application/json",
	}, s.jsonResource(URIClusterHealth, func(ctx context.Context) (any, error) {
		return s.cluster.Health(ctx), nil
	}))

	if s.metrics == nil {
		return
	}
	s.mcp.AddResource(&mcp.Resource{
		Name:        "query_metrics",
		URI:         URIQueryMetrics,
		Description: "Query and per-shard telemetry since the server started",
		MIMEType:    "application/json",
	}, s.jsonResource(URIQueryMetrics, func(context.Context) (any, error) {
		return s.metrics.Snapshot(), nil
	}))
}

func (s *Server) jsonResource(uri string, load func(context.Context) (any, error)) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req.Params.URI != uri {
			return nil, NewResourceNotFoundError(req.Params.URI)
		}
		v, err := load(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", uri, err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			}},
		}, nil
	}
}

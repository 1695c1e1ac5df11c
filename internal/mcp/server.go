package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
	"github.com/Aman-CERP/shardsearch/pkg/version"
)

const (
	serverName   = "shardsearch"
	defaultLimit = protocol.DefaultLimit
	maxLimit     = 1000
)

// Cluster is the coordinator surface the tools call.
type Cluster interface {
	Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
	PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error)
	Health(ctx context.Context) *protocol.ClusterHealth
}

// Options configures the MCP server.
type Options struct {
	// Metrics is exposed as the query_metrics resource when set.
	Metrics *telemetry.QueryMetrics
	Logger  *slog.Logger
}

// Server bridges AI clients and the shard cluster.
type Server struct {
	mcp     *mcp.Server
	cluster Cluster
	metrics *telemetry.QueryMetrics
	logger  *slog.Logger
}

// NewServer creates an MCP server with the search, pattern_search and
// shard_status tools registered.
func NewServer(cluster Cluster, opts Options) (*Server, error) {
	if cluster == nil {
		return nil, errors.New("cluster is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cluster: cluster,
		metrics: opts.Metrics,
		logger:  logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		}, nil),
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search",
		Description: "Find documents containing any of the given words across every shard. " +
			"Documents are ranked by how often the words occur in them.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "pattern_search",
		Description: "Find documents containing words that match a wildcard pattern " +
			"such as te?t or inter*. Lists the matching words per document.",
	}, s.patternHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "shard_status",
		Description: "Report which shards are reachable and the state of their circuit breakers.",
	}, s.shardStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	req := protocol.NewSearchRequest(input.Query)
	req.Limit = clampLimit(input.Limit, defaultLimit, maxLimit)
	req.CaseSensitive = input.CaseSensitive
	req.IncludeTimestamps = false
	if err := req.Validate(); err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	resp, err := s.cluster.Search(ctx, req)
	if err != nil {
		s.logger.Warn("mcp_search_failed", slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	out := ToSearchOutput(resp)
	return textResult(FormatSearch(out)), out, nil
}

func (s *Server) patternHandler(ctx context.Context, _ *mcp.CallToolRequest, input PatternInput) (
	*mcp.CallToolResult,
	PatternOutput,
	error,
) {
	req := protocol.NewPatternRequest(input.Pattern)
	req.Limit = clampLimit(input.Limit, defaultLimit, maxLimit)
	req.CaseSensitive = input.CaseSensitive
	if err := req.Validate(); err != nil {
		return nil, PatternOutput{}, MapError(err)
	}

	resp, err := s.cluster.PatternSearch(ctx, req)
	if err != nil {
		s.logger.Warn("mcp_pattern_failed", slog.String("error", err.Error()))
		return nil, PatternOutput{}, MapError(err)
	}

	out := ToPatternOutput(resp)
	return textResult(FormatPattern(out)), out, nil
}

func (s *Server) shardStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ShardStatusInput) (
	*mcp.CallToolResult,
	ShardStatusOutput,
	error,
) {
	out := ToShardStatusOutput(s.cluster.Health(ctx))
	return textResult(FormatShardStatus(out)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server on stdin/stdout until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves a single session over transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp_server_starting")
	err := s.mcp.Run(ctx, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/search"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

const (
	defaultTopWords = 10
	maxTopWords     = 1000
)

// ShardOptions configures the shard service handler.
type ShardOptions struct {
	InstanceID string
	// DefaultLimit applies when a request has no limit parameter.
	DefaultLimit int
	// Metrics is served at /api/metrics when set.
	Metrics *telemetry.QueryMetrics
	Logger  *slog.Logger
}

type shardHandler struct {
	opts   ShardOptions
	engine *search.Engine
	logger *slog.Logger
}

// NewShardHandler serves the shard endpoints over engine.
func NewShardHandler(engine *search.Engine, opts ShardOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &shardHandler{opts: opts, engine: engine, logger: logger.With(slog.String("instance_id", opts.InstanceID))}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+shard.PathSearch, h.search)
	mux.HandleFunc("GET "+shard.PathPattern, h.pattern)
	mux.HandleFunc("GET "+shard.PathHealth, h.health)
	mux.HandleFunc("GET "+shard.PathStats, h.stats)
	if opts.Metrics != nil {
		mux.HandleFunc("GET /api/metrics", h.metrics)
	}

	return chain(mux,
		withRequestID,
		withRecover(h.logger),
		withAccessLog(h.logger),
	)
}

func (h *shardHandler) applyDefaultLimit(r *http.Request, limit *int) {
	if r.URL.Query().Get("limit") == "" && h.opts.DefaultLimit > 0 {
		*limit = h.opts.DefaultLimit
	}
}

func (h *shardHandler) search(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.ParseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.applyDefaultLimit(r, &req.Limit)

	res, err := h.engine.Search(r.Context(), req.Terms(), search.Options{
		Limit:         req.Limit,
		CaseSensitive: req.CaseSensitive,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromResult(h.opts.InstanceID, res, req.IncludeTimestamps))
}

func (h *shardHandler) pattern(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.ParsePatternRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.applyDefaultLimit(r, &req.Limit)

	res, err := h.engine.PatternSearch(r.Context(), req.Pattern, search.Options{
		Limit:         req.Limit,
		CaseSensitive: req.CaseSensitive,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromPatternResult(h.opts.InstanceID, res))
}

func (h *shardHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := protocol.HealthResponse{
		InstanceID: h.opts.InstanceID,
		Status:     protocol.StatusOK,
		Timestamp:  time.Now().UTC(),
	}
	status := http.StatusOK
	if _, err := h.engine.Store().WordNames(r.Context(), nil); err != nil {
		h.logger.Warn("health_check_failed", slog.String("error", err.Error()))
		resp.Status = protocol.StatusDown
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *shardHandler) stats(w http.ResponseWriter, r *http.Request) {
	top := defaultTopWords
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxTopWords {
			writeError(w, r, h.logger, serrors.ValidationError(serrors.ErrCodeInvalidInput,
				"top must be a number between 0 and "+strconv.Itoa(maxTopWords)))
			return
		}
		top = n
	}

	st, err := h.engine.Store().Stats(r.Context(), top)
	if err != nil {
		writeError(w, r, h.logger, serrors.StoreError("read index statistics", err))
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromStats(h.opts.InstanceID, st))
}

func (h *shardHandler) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Metrics.Snapshot())
}

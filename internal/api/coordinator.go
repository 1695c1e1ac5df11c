package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/shardsearch/internal/coordinator"
	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

// Coordinator service paths.
const (
	PathCoordinator        = "/api/coordinator"
	PathCoordinatorPattern = "/api/coordinator/pattern"
	PathCoordinatorPing    = "/api/coordinator/ping"
	PathCoordinatorHealth  = "/api/coordinator/health"
	PathCoordinatorMetrics = "/api/coordinator/metrics"
)

// PingReply is the body of a successful ping.
const PingReply = "Coordinator"

// CoordinatorOptions configures the coordinator service handler.
type CoordinatorOptions struct {
	// RequestTimeout bounds each request. Zero disables it.
	RequestTimeout time.Duration
	// RateLimit is accepted queries per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// MaxInFlight bounds concurrent fan-outs. Zero means unbounded.
	MaxInFlight int64
	Metrics     *telemetry.QueryMetrics
	Logger      *slog.Logger
}

type coordinatorHandler struct {
	coord    *coordinator.Coordinator
	inFlight *semaphore.Weighted
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
}

// NewCoordinatorHandler serves the coordinator endpoints.
func NewCoordinatorHandler(coord *coordinator.Coordinator, opts CoordinatorOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &coordinatorHandler{coord: coord, metrics: opts.Metrics, logger: logger}
	if opts.MaxInFlight > 0 {
		h.inFlight = semaphore.NewWeighted(opts.MaxInFlight)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	limited := withRateLimit(limiter, logger)

	mux := http.NewServeMux()
	mux.Handle("GET "+PathCoordinator, limited(http.HandlerFunc(h.search)))
	mux.Handle("GET "+PathCoordinatorPattern, limited(http.HandlerFunc(h.pattern)))
	mux.HandleFunc("GET "+PathCoordinatorPing, h.ping)
	mux.HandleFunc("GET "+PathCoordinatorHealth, h.health)
	mux.HandleFunc("GET "+PathCoordinatorMetrics, h.metricsSnapshot)

	return chain(mux,
		withRequestID,
		withCORS,
		withRecover(logger),
		withAccessLog(logger),
		withTimeout(opts.RequestTimeout),
	)
}

// acquire waits for a fan-out slot. The returned release is never nil.
func (h *coordinatorHandler) acquire(r *http.Request) (func(), error) {
	if h.inFlight == nil {
		return func() {}, nil
	}
	if err := h.inFlight.Acquire(r.Context(), 1); err != nil {
		return func() {}, serrors.New(serrors.ErrCodeSearchFailed, "no fan-out slot before deadline", err)
	}
	return func() { h.inFlight.Release(1) }, nil
}

func (h *coordinatorHandler) search(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.ParseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	release, err := h.acquire(r)
	defer release()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.coord.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *coordinatorHandler) pattern(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.ParsePatternRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	release, err := h.acquire(r)
	defer release()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.coord.PatternSearch(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *coordinatorHandler) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(PingReply))
}

func (h *coordinatorHandler) health(w http.ResponseWriter, r *http.Request) {
	ch := h.coord.Health(r.Context())
	status := http.StatusOK
	if ch.Status == protocol.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ch)
}

func (h *coordinatorHandler) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

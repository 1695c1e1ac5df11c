// Package api exposes shard and coordinator services over HTTP.
//
// Every error body is {code, message, requestId}. Validation and rate
// limit messages describe the caller's own request and are passed
// through; everything else is reduced to an opaque message while the
// full error is logged with the request id.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response_write_failed", slog.String("error", err.Error()))
	}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case serrors.GetCode(err) == serrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case serrors.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	id := RequestID(r.Context())
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		attrs := append([]slog.Attr{
			slog.String("request_id", id),
			slog.String("path", r.URL.Path),
		}, serrors.LogAttrs(err)...)
		logger.LogAttrs(r.Context(), slog.LevelError, "request_failed", attrs...)
	}

	writeJSON(w, status, serrors.ForClient(err, id))
}

// Package shard provides clients for individual index shards. A client
// either answers a query with a partial result or returns a *Failure;
// callers never see panics or untyped errors from a shard.
package shard

import (
	"context"
	"errors"
	"fmt"
	"net"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
)

// Kind classifies why a shard produced no partial result.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindBadResponse Kind = "bad_response"
	KindServerError Kind = "server_error"
	KindCircuitOpen Kind = "circuit_open"
)

// Code returns the error code reported for the kind.
func (k Kind) Code() string {
	switch k {
	case KindTimeout:
		return serrors.ErrCodeShardTimeout
	case KindUnavailable:
		return serrors.ErrCodeShardUnavailable
	case KindBadResponse:
		return serrors.ErrCodeShardBadResponse
	case KindCircuitOpen:
		return serrors.ErrCodeCircuitOpen
	default:
		return serrors.ErrCodeShardServerError
	}
}

// Failure is the only error type a Client returns.
type Failure struct {
	Shard string
	Kind  Kind
	Code  string
	Cause error
}

// NewFailure builds a Failure of kind for shard.
func NewFailure(shard string, kind Kind, cause error) *Failure {
	return &Failure{Shard: shard, Kind: kind, Code: kind.Code(), Cause: cause}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Cause == nil {
		return fmt.Sprintf("shard %s: %s", f.Shard, f.Kind)
	}
	return fmt.Sprintf("shard %s: %s: %v", f.Shard, f.Kind, f.Cause)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Classify maps a transport or engine error to a Failure. Anything that
// is not recognisably a timeout or a connection problem is a server error.
func Classify(shard string, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewFailure(shard, KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewFailure(shard, KindUnavailable, err)
	case errors.Is(err, serrors.ErrCircuitOpen):
		return NewFailure(shard, KindCircuitOpen, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewFailure(shard, KindTimeout, err)
		}
		return NewFailure(shard, KindUnavailable, err)
	}

	return NewFailure(shard, KindServerError, err)
}

// Package mcp exposes the coordinator to AI clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
)

// MCP error codes. The -320xx range is server defined.
const (
	ErrCodeShardFailure = -32001
	ErrCodeStore        = -32002
	ErrCodeTimeout      = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams  = -32602
	ErrCodeMethodNotFound = -32601
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Messages are the
// client-safe ones, so causes never reach the AI client.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	se, ok := serrors.As(err)
	if !ok {
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}

	msg := serrors.ForClient(se, "").Message
	switch se.Category {
	case serrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
	case serrors.CategoryShard:
		return &MCPError{Code: ErrCodeShardFailure, Message: msg}
	case serrors.CategoryStore:
		return &MCPError{Code: ErrCodeStore, Message: msg}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: msg}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// Package mcp implements the Model Context Protocol server for Quarry.
package mcp

import (
	"context"
	"errors"
	"fmt"

	qerrors "github.com/quarryhq/quarry/internal/errors"
)

// Custom MCP error codes for Quarry.
const (
	// ErrCodeAllSourcesFailed indicates every retrieval backend failed.
	ErrCodeAllSourcesFailed = -32001

	// ErrCodePatternNotFound indicates the pattern id does not exist.
	ErrCodePatternNotFound = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var qe *qerrors.QuarryError
	if errors.As(err, &qe) {
		return mapQuarryError(qe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an invalid-parameters error with a custom
// message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

func mapQuarryError(qe *qerrors.QuarryError) *MCPError {
	switch qe.Code {
	case qerrors.ErrCodePatternNotFound:
		return &MCPError{Code: ErrCodePatternNotFound, Message: qe.Message}
	case qerrors.ErrCodeAllSourcesFailed:
		return &MCPError{Code: ErrCodeAllSourcesFailed, Message: qe.Message}
	case qerrors.ErrCodeSourceTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: qe.Message}
	}

	switch qe.Category {
	case qerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: qe.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: qe.Message}
	}
}

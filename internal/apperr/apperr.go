// Package apperr defines the error taxonomy shared by every service layer.
// Transports translate these errors into their wire shapes (HTTP status or
// JSON-RPC error code) at the boundary only.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	TooManyRequests
	InvalidArgument
	NotFound
	Conflict
	EmbeddingFailed
	Database
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case TooManyRequests:
		return "too_many_requests"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case EmbeddingFailed:
		return "embedding_failed"
	case Database:
		return "database"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error

	// RetryAfter is how long the caller should wait before retrying; only
	// meaningful on TooManyRequests.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithRetryAfter attaches a retry hint and returns e for chaining.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// RetryAfterOf extracts the retry hint from err, zero when absent.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// KindOf reports the taxonomy kind of err, or Internal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the client-safe message of err. Untagged errors collapse to
// a generic message so internal detail never leaks onto the wire.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case TooManyRequests:
		return http.StatusTooManyRequests
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// JSON-RPC 2.0 error codes used by the MCP endpoint.
const (
	RPCCodeDomain         = -32000
	RPCCodeParse          = -32700
	RPCCodeMethodNotFound = -32601
	RPCCodeInternal       = -32603
)

// RPCCode maps err onto a JSON-RPC error code: -32000 for any domain-level
// failure, -32603 for unexpected internal ones.
func RPCCode(err error) int {
	if KindOf(err) == Internal {
		return RPCCodeInternal
	}
	return RPCCodeDomain
}

// Package apperr defines the tagged error kinds used across the engine.
// Every fallible operation surfaces one of these kinds so callers (HTTP
// handlers, the dispatcher, the reconciler) can map failures to stable
// behavior without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error.
// Each kind maps to a specific HTTP status code at the API edge.
type Kind int

const (
	// KindValidation represents malformed caller input.
	// Maps to HTTP 400 Bad Request.
	KindValidation Kind = iota

	// KindNotFound represents a missing entity.
	// Maps to HTTP 404 Not Found.
	KindNotFound

	// KindInvalidState represents an operation that is not valid for the
	// entity's current status. Maps to HTTP 400 Bad Request.
	KindInvalidState

	// KindConflict represents a lost optimistic update or a duplicate.
	// Maps to HTTP 409 Conflict.
	KindConflict

	// KindExternalService represents a failed call to the agent provider
	// or another external collaborator. Maps to HTTP 502 Bad Gateway.
	KindExternalService

	// KindTimeout represents a deadline exceeded on an external call.
	// Maps to HTTP 504 Gateway Timeout.
	KindTimeout

	// KindConfigMissing represents required configuration that is absent.
	// Maps to HTTP 503 Service Unavailable.
	KindConfigMissing

	// KindInternal represents unexpected internal errors.
	// Maps to HTTP 500 Internal Server Error.
	KindInternal
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindConflict:
		return "CONFLICT"
	case KindExternalService:
		return "EXTERNAL_SERVICE"
	case KindTimeout:
		return "TIMEOUT"
	case KindConfigMissing:
		return "CONFIG_MISSING"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// HTTPStatus returns the HTTP status code for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidState:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternalService:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a tagged error with a kind, a stable code, and a human message.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind.String(), e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind.String(), e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// WithDetail adds a detail to the error and returns it for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause and returns the error for chaining.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New creates an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a validation error (HTTP 400).
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// NotFound creates a not-found error (HTTP 404).
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// InvalidState creates an invalid-state error (HTTP 400).
func InvalidState(code, message string) *Error {
	return New(KindInvalidState, code, message)
}

// Conflict creates a conflict error (HTTP 409).
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// ExternalService creates an external-service error (HTTP 502).
func ExternalService(code, message string) *Error {
	return New(KindExternalService, code, message)
}

// Timeout creates a timeout error (HTTP 504).
func Timeout(code, message string) *Error {
	return New(KindTimeout, code, message)
}

// ConfigMissing creates a configuration-missing error (HTTP 503).
func ConfigMissing(code, message string) *Error {
	return New(KindConfigMissing, code, message)
}

// Internal creates an internal error (HTTP 500).
func Internal(code, message string) *Error {
	return New(KindInternal, code, message)
}

// From extracts an *Error from err, wrapping unknown errors as KindInternal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(CodeUnexpected, err.Error()).WithCause(err)
}

// Common error codes reused across handlers and services.
const (
	CodeRequired         = "REQUIRED"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeInvalidValue     = "INVALID_VALUE"
	CodeBatchNotFound    = "BATCH_NOT_FOUND"
	CodeSupplierNotFound = "SUPPLIER_NOT_FOUND"
	CodePONotFound       = "PO_NOT_FOUND"
	CodeJobNotFound      = "JOB_NOT_FOUND"
	CodeNotQueued        = "BATCH_NOT_QUEUED"
	CodeSupplierBusy     = "SUPPLIER_IN_CALL"
	CodeStatusChanged    = "STATUS_CHANGED"
	CodeProviderFailed   = "PROVIDER_FAILED"
	CodeProviderTimeout  = "PROVIDER_TIMEOUT"
	CodeNoProvider       = "NO_PROVIDER_CONFIGURED"
	CodeUnexpected       = "UNEXPECTED"
)

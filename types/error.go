package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// LLM error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrAuthentication      ErrorCode = "AUTHENTICATION"
	ErrUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrForbidden           ErrorCode = "FORBIDDEN"
	ErrRateLimit           ErrorCode = "RATE_LIMIT"
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrModelNotFound       ErrorCode = "MODEL_NOT_FOUND"
	ErrContextTooLong      ErrorCode = "CONTEXT_TOO_LONG"
	ErrContentFiltered     ErrorCode = "CONTENT_FILTERED"
	ErrModelOverloaded     ErrorCode = "MODEL_OVERLOADED"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Structured output error codes
const (
	ErrSchemaValidation ErrorCode = "SCHEMA_VALIDATION"
	ErrOutputParsing    ErrorCode = "OUTPUT_PARSING"
	ErrRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"
)

// Document extraction error codes
const (
	ErrDocumentTooLarge   ErrorCode = "DOCUMENT_TOO_LARGE"
	ErrDocumentUnreadable ErrorCode = "DOCUMENT_UNREADABLE"
	ErrExtractionFailed   ErrorCode = "EXTRACTION_FAILED"
	ErrPlanNotFound       ErrorCode = "PLAN_NOT_FOUND"
)

// Error carries a code, a human-readable message, and transport metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Builder-style setters, chainable on a freshly constructed Error.

func (e *Error) WithCause(cause error) *Error       { e.Cause = cause; return e }
func (e *Error) WithHTTPStatus(status int) *Error   { e.HTTPStatus = status; return e }
func (e *Error) WithRetryable(retryable bool) *Error { e.Retryable = retryable; return e }
func (e *Error) WithProvider(provider string) *Error { e.Provider = provider; return e }

// IsRetryable reports whether err (or any error it wraps) is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from err or any error it wraps.
// Returns "" for plain errors.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

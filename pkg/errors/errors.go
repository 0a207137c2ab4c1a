package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeBadPayload ErrorCode = "BAD_PAYLOAD"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Authorization errors
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Not found errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUserNotFound    ErrorCode = "USER_NOT_FOUND"
	ErrCodeCallNotFound    ErrorCode = "CALL_NOT_FOUND"
	ErrCodeMessageNotFound ErrorCode = "MESSAGE_NOT_FOUND"

	// Protocol-level errors surfaced as structured acknowledgments
	ErrCodeMessageNotInRoom ErrorCode = "MESSAGE_NOT_IN_ROOM"
	ErrCodeInviteFailed     ErrorCode = "INVITE_FAILED"
	ErrCodeHangupFailed     ErrorCode = "HANGUP_FAILED"

	// Conflict errors
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Crypto errors - always fatal to the operation, never swallowed
	ErrCodeCrypto ErrorCode = "CRYPTO_ERROR"

	// Internal errors
	ErrCodeInternal ErrorCode = "SERVER_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap creates a new AppError wrapping an underlying error
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// BadPayload creates a validation error for malformed protocol payloads
func BadPayload(message string) *AppError {
	return NewWithStatus(ErrCodeBadPayload, message, http.StatusBadRequest)
}

// Unauthorized creates an authentication error
func Unauthorized(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden creates an authorization error
func Forbidden(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// NotFound creates a not-found error
func NotFound(code ErrorCode, message string) *AppError {
	return NewWithStatus(code, message, http.StatusNotFound)
}

// Internal creates a generic server error that hides internals from clients
func Internal(err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err is an AppError carrying the given code
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

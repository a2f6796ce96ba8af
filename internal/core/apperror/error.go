// Package apperror provides structured error handling for the engine.
// All business errors must use AppError so callers get a stable kind plus
// enough context to decide between retrying and correcting input.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, grouped by taxonomy.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Not found (404)
	CodeNotFound        = "NOT_FOUND"
	CodeProductInactive = "PRODUCT_INACTIVE"

	// Conflict (409) - caller must resolve, never retried
	CodeNegativeStock = "NEGATIVE_BALANCE_NOT_ALLOWED"
	CodeIdempotency   = "IDEMPOTENCY_CONFLICT"

	// Contention (503) - write-lock budget exhausted, safe to retry
	// at the caller with the same idempotency key.
	CodeContention = "CONTENTION_ERROR"
)

// AppError is the standard error type for the engine.
// It implements error and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (product id, quantities, references)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400).
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewProductInactive is returned when posting against a disabled product.
func NewProductInactive(productID string) *AppError {
	return &AppError{
		Code:       CodeProductInactive,
		Message:    "Product is inactive",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"product_id": productID},
	}
}

// NewNegativeStock is returned when deployment policy forbids negative stock
// and an outflow would drive the balance below zero.
func NewNegativeStock(productID string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeNegativeStock,
		Message:    "Outflow would drive stock balance below zero",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewIdempotencyConflict is returned while the same key is being processed
// by a concurrent in-flight request.
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused
// for a different request body.
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key reused for a different request",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewContention is returned when the write-lock retry budget is exhausted.
// Safe to retry at the caller with the same idempotency key.
func NewContention(attempts int, err error) *AppError {
	return &AppError{
		Code:       CodeContention,
		Message:    "Could not acquire write transaction, retry budget exhausted",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"attempts": attempts},
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client).
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helpers ---

// AsAppError extracts AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the appropriate HTTP status for any error.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound.
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsContention checks if error is CodeContention.
func IsContention(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeContention
	}
	return false
}

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

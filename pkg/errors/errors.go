// Package errors defines the sentinel errors shared across the service and
// their mapping to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited marks a request rejected by the rate limiter. It is an
	// expected outcome, not a fault.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidInput marks malformed request parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable marks a transient document-store failure. A search
	// that cannot read the store fails with this, never with empty results.
	ErrStoreUnavailable = errors.New("document store unavailable")
	// ErrSourceFetch marks a failed ingestion source fetch.
	ErrSourceFetch = errors.New("source fetch failed")
)

// AppError pairs a sentinel error with a human-readable message and an
// explicit HTTP status code.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status it should be reported as.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

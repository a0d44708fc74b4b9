// Package errors defines the sentinel errors shared by the indexer, the
// stores and the search service, plus an AppError type that carries an HTTP
// status for handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrFieldOverflow   = errors.New("value exceeds fixed field width")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoGeneration    = errors.New("no index generation available")
	ErrBuildInProgress = errors.New("index build already in progress")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

// AppError pairs a sentinel with a client-facing message and status.
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

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps err to a response status. An AppError carries its
// own; otherwise the first matching sentinel decides and anything else is a
// server error, including ErrCorruptIndex.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrBuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrNoGeneration):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage is the error text safe to return to a caller. Server
// errors become fallback, except ErrCorruptIndex, which is always named.
func ClientMessage(err error, fallback string) string {
	if errors.Is(err, ErrCorruptIndex) {
		return ErrCorruptIndex.Error()
	}
	if HTTPStatusCode(err) == http.StatusInternalServerError {
		return fallback
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures surfaced to HTTP callers.
type ErrorKind string

const (
	KindClientInput ErrorKind = "client_input"
	KindAlgorithm   ErrorKind = "algorithm_failure"
	KindUnhandled   ErrorKind = "unhandled_processing"
)

var (
	ErrMissingInput       = errors.New("missing input")
	ErrInvalidBase64      = errors.New("invalid base64 payload")
	ErrUnreadableImage    = errors.New("unreadable image")
	ErrUnknownMethod      = errors.New("unknown method")
	ErrPageOutOfRange     = errors.New("page out of range")
	ErrPathInputsDisabled = errors.New("path inputs are disabled")
	ErrPathOutsideRoot    = errors.New("path outside allowed root")

	// ErrNoResult is returned by a Comparator when the algorithm yields nothing usable.
	ErrNoResult = errors.New("no result")
)

// AppError carries the kind and the caller-facing message of a failure.
type AppError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindClientInput, KindAlgorithm:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func NewClientInputError(message string, cause error) *AppError {
	return &AppError{Kind: KindClientInput, Message: message, Cause: cause}
}

func NewAlgorithmFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindAlgorithm, Message: message, Cause: cause}
}

func NewUnhandledProcessingError(message string, cause error) *AppError {
	return &AppError{Kind: KindUnhandled, Message: message, Cause: cause}
}

// PageOutOfRangeError builds the range failure for a PDF with count pages.
func PageOutOfRangeError(page, count int) *AppError {
	return NewClientInputError(
		fmt.Sprintf("Page number %d is out of range. The PDF has %d pages.", page, count),
		ErrPageOutOfRange,
	)
}

// StatusCode returns the HTTP status for any error, defaulting to 500.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err wraps an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

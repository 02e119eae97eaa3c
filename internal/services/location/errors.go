package location

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies why a fix could not be obtained
type ErrorCode string

const (
	ErrPermissionDenied    ErrorCode = "PERMISSION_DENIED"
	ErrPositionUnavailable ErrorCode = "POSITION_UNAVAILABLE"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrUnsupported         ErrorCode = "UNSUPPORTED"
)

var userMessages = map[ErrorCode]string{
	ErrPermissionDenied:    "Location permission denied. Please enable location access and try again.",
	ErrPositionUnavailable: "Location information is unavailable. Move to an open area and try again.",
	ErrTimeout:             "Location request timed out. Please try again.",
	ErrUnsupported:         "Location services are not supported on this device.",
}

// LocationError is always recoverable: it carries a user-facing message and
// the caller offers a retry.
type LocationError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewLocationError builds a LocationError with the standard message for code
func NewLocationError(code ErrorCode, cause error) *LocationError {
	return &LocationError{Code: code, Message: userMessages[code], Err: cause}
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed
func (e *LocationError) Retryable() bool {
	return e.Code == ErrPositionUnavailable || e.Code == ErrTimeout
}

// toLocationError maps any source error onto the LocationError taxonomy
func toLocationError(err error) *LocationError {
	if err == nil {
		return nil
	}

	var locErr *LocationError
	if errors.As(err, &locErr) {
		return locErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewLocationError(ErrTimeout, err)
	}

	return NewLocationError(ErrPositionUnavailable, err)
}

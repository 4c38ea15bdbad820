package scaleerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the job pipeline. Callers match with errors.Is; the
// HTTP layer maps them onto status codes and the worker maps them onto the
// job's terminal error state.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInference        = errors.New("inference failed")
)

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func ModelUnavailablef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrModelUnavailable, fmt.Sprintf(format, args...))
}

func Inferencef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInference, fmt.Sprintf(format, args...))
}

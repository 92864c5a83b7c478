package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNoDeleteCriteria guards the fact delete path against an accidental
	// full-table wipe when no filters are supplied.
	ErrNoDeleteCriteria = errors.New("no parameters provided to data delete")
)

// ValidationError is a recoverable caller mistake: an unknown entity type, a
// missing required field, a malformed query expression. Validation errors
// short-circuit before any database I/O.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation builds a ValidationError with a formatted message.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TimeoutError is returned when a transaction scope reaches its deadline
// without receiving a terminal commit or rollback signal.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("a transaction timeout occurred after %s", e.Duration)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Package errors defines the sentinel errors shared by the index layers and an
// AppError wrapper that records which operation failed.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrRecordExists  = errors.New("record already exists")
	ErrShardClosed   = errors.New("shard closed")
	ErrReplicaWrite  = errors.New("replica write failed")
	ErrInternal      = errors.New("internal error")

	// ErrShardUnavailable is never returned by the in-memory shards. It is
	// reserved for shard implementations that can become unreachable.
	ErrShardUnavailable = errors.New("shard unavailable")
)

// AppError attaches the failing operation and a human readable message to a
// sentinel error.
type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Op returns the operation recorded on the outermost AppError in err's chain,
// or "" when there is none.
func Op(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Op
	}
	return ""
}

// Is and As re-export the standard helpers so callers only import one errors
// package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// Retryable reports whether a write that failed with err may succeed if it is
// submitted again unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrShardUnavailable)
}

package cache

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for cache operations.
const (
	ErrCodeLoadFailed       errors.ErrorCode = "CELLCACHE_LOAD_FAILED"
	ErrCodeRemovalFailed    errors.ErrorCode = "CELLCACHE_REMOVAL_FAILED"
	ErrCodeNoLoader         errors.ErrorCode = "CELLCACHE_NO_LOADER"
	ErrCodeClosed           errors.ErrorCode = "CELLCACHE_CLOSED"
	ErrCodeUncheckedFailure errors.ErrorCode = "CELLCACHE_UNCHECKED_FAILURE"
)

const (
	msgLoadFailed       = "loader failed"
	msgRemovalFailed    = "remover failed, value may not have been persisted"
	msgNoLoader         = "no loader provided"
	msgClosed           = "cache is closed"
	msgUncheckedFailure = "unrecoverable cache failure"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed error = errors.NewWithContext(ErrCodeClosed, msgClosed, nil)

// NewErrLoadFailed wraps a loader failure for key k. The same error value is
// delivered to every caller waiting on the failed load.
func NewErrLoadFailed(k any, cause error) error {
	return errors.Wrap(cause, ErrCodeLoadFailed, msgLoadFailed).
		WithContext("key", k).
		AsRetryable()
}

// NewErrRemovalFailed wraps a remover failure for key k.
func NewErrRemovalFailed(k any, reason EvictReason, cause error) error {
	return errors.Wrap(cause, ErrCodeRemovalFailed, msgRemovalFailed).
		WithContext("key", k).
		WithContext("reason", reason.String()).
		WithSeverity("warning")
}

// NewErrNoLoader reports a Get without a loader.
func NewErrNoLoader(k any) error {
	return errors.NewWithContext(ErrCodeNoLoader, msgNoLoader, map[string]interface{}{"key": k})
}

// IsLoadError reports whether err (or anything it wraps) is a load failure.
func IsLoadError(err error) bool { return errors.HasCode(err, ErrCodeLoadFailed) }

// IsRemovalError reports whether err contains a removal failure.
func IsRemovalError(err error) bool { return errors.HasCode(err, ErrCodeRemovalFailed) }

// IsRetryable reports whether the failed operation may succeed on retry.
func IsRetryable(err error) bool {
	var r errors.Retryable
	if goerrors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// ErrorKey extracts the key recorded in a structured cache error.
func ErrorKey(err error) (any, bool) {
	var e *errors.Error
	if !goerrors.As(err, &e) || e.Context == nil {
		return nil, false
	}
	k, ok := e.Context["key"]
	return k, ok
}

// FatalError is the panic value raised by unchecked adapters.
type FatalError struct {
	Key any
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("cellcache: fatal failure for key %v: %v", e.Key, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func newFatal(k any, cause error) *FatalError {
	return &FatalError{
		Key: k,
		Err: errors.Wrap(cause, ErrCodeUncheckedFailure, msgUncheckedFailure).
			WithContext("key", k).
			WithSeverity("critical"),
	}
}

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when a lookup by name, id or row finds
	// nothing to act on.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRateLimited marks backend failures caused by request throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrReadFailed is returned once a rate-limited read has used up its
	// retries. It also matches ErrRateLimited.
	ErrReadFailed = fmt.Errorf("read failed: %w", ErrRateLimited)
	// ErrWriteFailed is returned once a rate-limited write has used up its
	// retries. It also matches ErrRateLimited.
	ErrWriteFailed = fmt.Errorf("write failed: %w", ErrRateLimited)
)

// ExternalServiceError wraps any backend failure that is not throttling:
// auth problems, malformed ranges, missing sheets. These are never retried.
type ExternalServiceError struct {
	Op    string
	Range string
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Range, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

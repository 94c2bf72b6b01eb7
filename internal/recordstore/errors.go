package recordstore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the key does not exist. This is a normal,
	// expected outcome for existence checks; callers branch on it rather
	// than logging it as a failure.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates the store rejected a write because of
	// contention or a create-on-existing-key collision. Transient for
	// multi-record batches; callers retry after RetryAfter(err).
	ErrConflict = errors.New("record conflict")

	// ErrUnavailable indicates the store could not be reached or is
	// temporarily refusing work. Transient.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalid indicates a permanently malformed record or request.
	// Never retried; surfaced to the user.
	ErrInvalid = errors.New("invalid record")
)

// DefaultRetryAfter is the backoff used when the store did not suggest one.
const DefaultRetryAfter = 2 * time.Second

// RetryAfterError carries a store-suggested backoff alongside a transient
// failure.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.After)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is worth a bounded retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}

// RetryAfter returns the store-suggested backoff for a transient error,
// falling back to DefaultRetryAfter.
func RetryAfter(err error) time.Duration {
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.After > 0 {
		return ra.After
	}
	return DefaultRetryAfter
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy defines how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
	}
}

// RetryableError wraps an error to indicate it should be retried.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError marks err as transient.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable checks if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Attempts are separated by a fixed delay.
func Retry(ctx context.Context, policy RetryPolicy, clock Clock, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-clock.After(policy.Delay):
		}
	}

	return fmt.Errorf("max attempts exceeded (%d): %w", attempts, lastErr)
}

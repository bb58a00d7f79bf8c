// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devicelink

import (
	"context"
	"errors"
	"time"
)

// RetryableError wraps a registration failure that is worth retrying
// (already-pending, focus-stolen, transient network), as distinct from a
// terminal error that should abort the retry loop immediately.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return e.Cause.Error() }
func (e *RetryableError) Unwrap() error { return e.Cause }

// Retryable wraps err so RetryPolicy.Run treats it as worth another
// attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Cause: err}
}

// isRetryable reports whether err was wrapped with Retryable.
func isRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryPolicy bounds the registration-with-retries loop described for the
// device-linking flow: a fixed number of attempts separated by a fixed
// delay, giving up immediately on a non-retryable (terminal) error.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy matches the spec's default MAX_REGISTRATION_ATTEMPTS
// / REGISTRATION_RETRY_DELAY_MS knobs for a typical mobile network.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 2 * time.Second}
}

// Run invokes attempt up to MaxAttempts times. A nil error ends the loop
// successfully. A terminal (non-Retryable) error ends it immediately. A
// Retryable error waits Delay (or until ctx is done) and tries again;
// once attempts are exhausted the last retryable error is returned
// unwrapped.
func (p RetryPolicy) Run(ctx context.Context, attempt func(attemptNum int) error) error {
	var lastErr error
	for i := 1; i <= p.MaxAttempts; i++ {
		err := attempt(i)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = errors.Unwrap(err)
		if i == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return lastErr
}

package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoff calls fn up to maxRetries+1 times with exponential backoff
// starting at one second.
func RetryWithBackoff(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	return RetryWithBackoffFrom(ctx, maxRetries, time.Second, fn)
}

// RetryWithBackoffFrom is RetryWithBackoff with a custom base delay.
// fn receives the current attempt number (0-indexed). It should return nil on success.
// An error wrapped with Permanent stops the loop and is returned unwrapped.
// If the context is cancelled, the context error is returned immediately.
func RetryWithBackoffFrom(ctx context.Context, maxRetries int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		// Don't wait after the last attempt
		if attempt == maxRetries {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff := base << attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// Package retry runs an operation again when it fails with an error the
// caller classifies as transient.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines how often and how far apart attempts are made.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// Retryable reports whether err is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(err error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy matches the storage write gate: 25 attempts, one second apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 25,
		Delay:       time.Second,
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func() error) error {
	_, err := DoWithResult(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	var (
		attempt int
		lastErr error
	)
	op := func() (T, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, _ time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	result, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		var zero T
		// Cancellation surfaces as ctx.Err(); callers want the operation's error.
		if lastErr != nil {
			return zero, lastErr
		}
		return zero, err
	}
	return result, nil
}

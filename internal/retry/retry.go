package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// MaxAttempts is the default number of tries for one remote call.
const MaxAttempts = 3

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int           // 0 for transport failures
	Message    string
	RetryAfter time.Duration // Server-provided hint, if any
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Policy bounds how a call is retried.
type Policy struct {
	Attempts int
	Backoff  func(attempt int) time.Duration
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{Attempts: MaxAttempts, Backoff: Backoff}
}

// Wait returns how long to sleep before retrying after err on the given
// attempt. A Retry-After hint longer than the computed backoff wins.
func (p Policy) Wait(attempt int, err error) time.Duration {
	backoff := p.Backoff
	if backoff == nil {
		backoff = Backoff
	}
	d := backoff(attempt)
	var retryErr *RetryableError
	if errors.As(err, &retryErr) && retryErr.RetryAfter > d {
		d = retryErr.RetryAfter
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. It returns the number of attempts made and the
// last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := range attempts {
		lastErr = fn(ctx)
		if lastErr == nil || !IsRetryable(lastErr) {
			return attempt + 1, lastErr
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(p.Wait(attempt, lastErr)):
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		}
	}
	return attempts, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

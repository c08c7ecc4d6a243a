// Package retry runs calls under a bounded exponential-backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default policy values.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
)

// retryableStatus lists upstream status codes worth another attempt.
var retryableStatus = map[int]bool{
	408: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// RetryableStatus reports whether an HTTP status code is transient.
func RetryableStatus(code int) bool {
	return retryableStatus[code]
}

// StatusCoder is implemented by errors that carry an upstream status code.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusCode extracts the upstream status code from err, or 0 when it has none.
func StatusCode(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// Retryable is the default predicate: the error carries a transient status code.
func Retryable(err error) bool {
	return RetryableStatus(StatusCode(err))
}

// Policy configures Do.
type Policy struct {
	// MaxAttempts bounds the total number of calls, the first one included.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt; it doubles after each retry.
	InitialBackoff time.Duration
	// Retryable decides whether a failure is transient. Defaults to Retryable.
	Retryable func(error) bool
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy returns the policy used against the table store.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
	}
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Schedule returns the waits Do performs before attempts 2..MaxAttempts.
func (p Policy) Schedule() []time.Duration {
	attempts := p.attempts()
	waits := make([]time.Duration, 0, attempts-1)
	wait := p.InitialBackoff
	for i := 1; i < attempts; i++ {
		waits = append(waits, wait)
		wait *= 2
	}
	return waits
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds, fails permanently, or runs out of attempts.
// Attempt 1 runs immediately; attempt n+1 waits InitialBackoff*2^(n-1).
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = Retryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := p.attempts()
	wait := p.InitialBackoff
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return v, err
		}
		if attempt >= attempts {
			return v, &ExhaustedError{Attempts: attempt, Err: err}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return v, fmt.Errorf("retry aborted after attempt %d: %w", attempt, errors.Join(serr, err))
		}
		wait *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

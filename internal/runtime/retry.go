package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
)

// BackoffSchedule computes the delay before the next attempt. Attempt
// numbering starts at 1 for the delay after the first failure.
type BackoffSchedule interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval between every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration { return b.Interval }

// LinearBackoff grows the wait by Step per attempt, capped at Max.
type LinearBackoff struct {
	Step time.Duration
	Max  time.Duration
}

func (b LinearBackoff) Delay(attempt int) time.Duration {
	d := time.Duration(attempt) * b.Step
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// ExponentialBackoff doubles the wait per attempt, capped at Max. Jitter, in
// [0, 1], randomises each delay around its nominal value to avoid thundering
// herds; zero disables it.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Initial
	eb.RandomizationFactor = b.Jitter
	eb.Multiplier = 2
	if b.Max > 0 {
		eb.MaxInterval = b.Max
	}

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}
	return d
}

// RetryPolicy bounds re-invocation of a failed operation.
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// ShouldRetry decides whether an error is transient. Nil retries
	// everything except cancellations and missing handlers.
	ShouldRetry func(error) bool

	// Schedule computes the wait between attempts. Nil means no delay.
	Schedule BackoffSchedule

	// WrapExhausted wraps the final error in a RetryExhaustedError. When
	// false the caller observes the last underlying error unchanged.
	WrapExhausted bool
}

// NoRetry is the policy that gives every operation exactly one attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// DefaultRetryPolicy mirrors the configuration defaults: three attempts with
// exponential backoff.
func DefaultRetryPolicy(maxAttempts int, initial, max time.Duration) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Schedule:    ExponentialBackoff{Initial: initial, Max: max},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var notFound *errspkg.HandlerNotFoundError
	if errors.As(err, &notFound) {
		return false
	}
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return true
}

// ExecuteWithRetry runs op under the policy. The operation is invoked at
// most MaxAttempts times; the wait between attempts honours ctx
// cancellation. The last underlying error surfaces unchanged unless the
// policy asks for wrapping.
func ExecuteWithRetry(ctx context.Context, policy RetryPolicy, op func() (any, error)) (any, error) {
	attempts := policy.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts || !policy.retryable(err) {
			break
		}

		if policy.Schedule != nil {
			if wait := policy.Schedule.Delay(attempt); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, lastErr
				case <-timer.C:
				}
			}
		}
	}

	if policy.WrapExhausted && policy.retryable(lastErr) {
		return nil, &errspkg.RetryExhaustedError{Attempts: attempts, Err: lastErr}
	}
	return nil, lastErr
}

package answer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often and how patiently a failed answer call is retried.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy makes up to 5 attempts with randomized exponential waits
// between 1s and 60s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	MinBackoff:  time.Second,
	MaxBackoff:  60 * time.Second,
}

// Backoff builds the go-retry schedule for the policy.
func (p RetryPolicy) Backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	minB, maxB := p.MinBackoff, p.MaxBackoff
	if minB <= 0 {
		minB = DefaultRetryPolicy.MinBackoff
	}
	if maxB < minB {
		maxB = minB
	}

	b := retry.NewExponential(minB)
	b = retry.WithJitterPercent(50, b)
	b = withFloor(minB, b)
	b = retry.WithCappedDuration(maxB, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// withFloor raises every wait from next to at least floor.
func withFloor(floor time.Duration, next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		val, stop := next.Next()
		if stop {
			return 0, true
		}
		if val < floor {
			val = floor
		}
		return val, false
	})
}

// Do runs fn until it succeeds, returns a permanent error, or the policy runs
// out of attempts. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || IsPermanent(err) {
			return err
		}
		slog.Warn("answer attempt failed", "attempt", attempt, "max_attempts", p.MaxAttempts, "error", err)
		return retry.RetryableError(err)
	})
}

// Retrying wraps a Provider with a RetryPolicy.
type Retrying struct {
	Provider Provider
	Policy   RetryPolicy
}

func (r Retrying) Answer(ctx context.Context, question, contextText string) (string, error) {
	var out string
	err := r.Policy.Do(ctx, func(ctx context.Context) error {
		a, err := r.Provider.Answer(ctx, question, contextText)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

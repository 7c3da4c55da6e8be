package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy defines bounded retry-with-backoff behavior for external
// collaborator calls. Exhausting the policy degrades the caller to a safe
// default rather than propagating the error into the synthesizer.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryPolicy matches the documented external-call contract: three
// attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// ExecuteWithRetry runs op under the policy, sleeping between attempts. It
// returns the last error when every attempt fails or the context is done.
func ExecuteWithRetry[T any](ctx context.Context, policy RetryPolicy, logger *logrus.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		logger.WithError(err).WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt,
		}).Warn("external call failed")

		if attempt == policy.MaxAttempts {
			break
		}

		sleep := delay
		if policy.JitterEnabled && delay > 0 {
			sleep += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}

// Package retry implements the bounded retry policy used at the remote and
// filesystem boundaries.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

const maxBackoff = time.Minute

// DefaultRetryPolicy returns the policy for transient remote failures.
func DefaultRetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       3,
		Backoff:           2 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableFailures: []types.FailureCategory{
			types.FailureTransient,
			types.FailureTimeout,
		},
	}
}

// RenamePolicy returns the policy for local renames that lose a race with
// another reader holding the file.
func RenamePolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       5,
		Backoff:           400 * time.Millisecond,
		BackoffMultiplier: 1.0,
		RetryableFailures: []types.FailureCategory{types.FailureTransient},
	}
}

// CalculateBackoff returns the wait duration before the given attempt.
// Uses exponential backoff: base * multiplier^(attempt-1), capped.
func CalculateBackoff(policy types.RetryPolicy, attempt int) time.Duration {
	if attempt <= 1 {
		return policy.Backoff
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := float64(policy.Backoff) * math.Pow(multiplier, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(backoff)
}

// IsRetryable returns whether a failure category should be retried.
func IsRetryable(policy types.RetryPolicy, category types.FailureCategory) bool {
	if category == types.FailurePermanent {
		return false
	}
	if len(policy.RetryableFailures) == 0 {
		return category == types.FailureTransient || category == types.FailureTimeout
	}
	for _, fc := range policy.RetryableFailures {
		if fc == category {
			return true
		}
	}
	return false
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are exhausted. The last error is returned.
func Do(ctx context.Context, policy types.RetryPolicy, classify func(error) types.FailureCategory, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts || !IsRetryable(policy, classify(err)) {
			return err
		}
		if werr := wait(ctx, CalculateBackoff(policy, attempt)); werr != nil {
			return err
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

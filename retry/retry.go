// ABOUTME: This file implements exponential backoff with jitter for delivery attempts
// ABOUTME: Exposes the delay schedule so queued work can be timed without sleeping
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted wraps the last error once the attempt budget is spent.
var ErrExhausted = errors.New("retry budget exhausted")

type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// Delay returns the wait before the given attempt (1-based) is retried.
// Jitter is strictly additive so the exponential curve is a lower bound.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	delay += rand.Float64() * p.JitterFactor * delay
	return time.Duration(delay)
}

// ErrorClassifier reports whether an error is worth another attempt.
type ErrorClassifier func(error) bool

type Retrier struct {
	policy      Policy
	isRetryable ErrorClassifier
	logger      *slog.Logger
}

func NewRetrier(policy Policy, classifier ErrorClassifier, logger *slog.Logger) *Retrier {
	return &Retrier{
		policy:      policy,
		isRetryable: classifier,
		logger:      logger,
	}
}

// Do runs the operation until it succeeds, a non-retryable error occurs, the
// attempt budget runs out, or the context is cancelled. The wait between
// attempts is cancellable.
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				r.logger.InfoContext(ctx, "operation succeeded after retry",
					"attempt", attempt,
					"total_duration_ms", time.Since(start).Milliseconds())
			}
			return nil
		}

		retryable := r.isRetryable != nil && r.isRetryable(lastErr)
		if !retryable {
			r.logger.ErrorContext(ctx, "operation failed with non-retryable error",
				"attempt", attempt,
				"error", lastErr)
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.Delay(attempt)
		r.logger.WarnContext(ctx, "operation attempt failed, backing off",
			"attempt", attempt,
			"error", lastErr,
			"retry_delay_ms", delay.Milliseconds())

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	r.logger.ErrorContext(ctx, "operation failed permanently",
		"attempts", r.policy.MaxAttempts,
		"error", lastErr,
		"total_duration_ms", time.Since(start).Milliseconds())
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, lastErr)
}

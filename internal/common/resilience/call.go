package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facility-search-workers/internal/common/metrics"
)

var ErrTimeout = errors.New("external call timed out")

// Policy bounds one external boundary: how long a single attempt may take,
// how many extra attempts are made, and the base backoff between them.
type Policy struct {
	Boundary    string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
}

// Retryable lets fn mark an error as worth another attempt. Errors that do
// not implement it are retried only when they are timeouts.
type Retryable interface {
	Retryable() bool
}

// Call runs fn under the policy and returns fallback with the final error
// when every attempt fails. Callers decide whether the error is worth
// logging; the pipeline never propagates it past a stage.
func Call[T any](ctx context.Context, p Policy, fallback T, fn func(ctx context.Context) (T, error)) (T, error) {
	backoff := p.BaseBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				metrics.ExternalCalls.WithLabelValues(p.Boundary, "fallback").Inc()
				return fallback, fmt.Errorf("%s: %w", p.Boundary, ctx.Err())
			}
		}

		result, err := runAttempt(ctx, p, fn)
		if err == nil {
			metrics.ExternalCalls.WithLabelValues(p.Boundary, "ok").Inc()
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrTimeout) {
			metrics.ExternalCalls.WithLabelValues(p.Boundary, "timeout").Inc()
		} else {
			metrics.ExternalCalls.WithLabelValues(p.Boundary, "error").Inc()
		}
		if ctx.Err() != nil || !shouldRetry(err) {
			break
		}
	}

	metrics.ExternalCalls.WithLabelValues(p.Boundary, "fallback").Inc()
	return fallback, fmt.Errorf("%s: %w", p.Boundary, lastErr)
}

func runAttempt[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	result, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, fmt.Errorf("%w after %s: %v", ErrTimeout, p.Timeout, err)
	}
	return result, err
}

func shouldRetry(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

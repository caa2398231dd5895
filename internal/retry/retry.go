package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Feed is a decorator that retries transient failures with exponential
// backoff and jitter before delegating to the wrapped feed.
type Feed struct {
	inner      model.Feed
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewFeed wraps a feed with retry logic.
// maxRetries is the number of additional attempts after the first failure (default: 2).
// baseDelay is the delay before the first retry (default: 5s), doubled on each subsequent retry.
func NewFeed(inner model.Feed, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Feed {
	return &Feed{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

func (f *Feed) Name() string { return f.inner.Name() }

// Fetch attempts to fetch raw jobs, retrying on transient errors.
func (f *Feed) Fetch(ctx context.Context) ([]model.RawJob, error) {
	raws, err := f.inner.Fetch(ctx)
	if err == nil {
		return raws, nil
	}

	if !isRetryable(err) {
		return nil, err
	}

	var lastErr error = err
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		delay := f.backoffDelay(attempt, lastErr)

		f.logger.Warn("retrying after transient error",
			"feed", f.inner.Name(),
			"attempt", attempt,
			"max_retries", f.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		raws, err = f.inner.Fetch(ctx)
		if err == nil {
			return raws, nil
		}

		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (f *Feed) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := f.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	// Apply ±30% jitter
	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Never retry context cancellation.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		// Other 4xx responses are permanent.
		return false
	}

	// Non-HTTP errors (network, DNS) are treated as transient.
	return true
}

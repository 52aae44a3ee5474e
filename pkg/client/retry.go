package client

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Retrier is an opt-in retry policy for callers. The Client itself never
// retries; wrap calls in Retrier.Do where retrying is acceptable.
//
// Rate limited calls wait for the server's Retry-After when present.
// Generic 5xx errors back off exponentially with jitter. Every other kind,
// and unclassified failures, are returned immediately.
type Retrier struct {
	maxRetries       int
	retryWaitMin     time.Duration
	retryWaitMax     time.Duration
	retryOnRateLimit bool
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithMaxRetries sets the maximum number of retry attempts.
// Default is 3. Set to 0 to disable retries.
func WithMaxRetries(n int) RetryOption {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithRetryWait sets the min/max retry backoff duration.
// Default is 1s min, 30s max.
func WithRetryWait(min, max time.Duration) RetryOption {
	return func(r *Retrier) {
		r.retryWaitMin = min
		r.retryWaitMax = max
	}
}

// WithoutRateLimitRetry disables retry on rate limit errors.
func WithoutRateLimitRetry() RetryOption {
	return func(r *Retrier) {
		r.retryOnRateLimit = false
	}
}

// NewRetrier creates a retry policy.
func NewRetrier(opts ...RetryOption) (*Retrier, error) {
	r := &Retrier{
		maxRetries:       3,
		retryWaitMin:     1 * time.Second,
		retryWaitMax:     30 * time.Second,
		retryOnRateLimit: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.maxRetries < 0 {
		return nil, errors.New("maxRetries cannot be negative")
	}
	if r.retryWaitMin <= 0 {
		return nil, errors.New("retryWaitMin must be positive")
	}
	if r.retryWaitMax <= 0 {
		return nil, errors.New("retryWaitMax must be positive")
	}
	if r.retryWaitMin >= r.retryWaitMax {
		return nil, errors.New("retryWaitMin must be less than retryWaitMax")
	}
	return r, nil
}

// Do executes fn with retry logic.
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, r.wait(attempt, lastErr)); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !r.shouldRetry(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func (r *Retrier) wait(attempt int, lastErr error) time.Duration {
	var rateLimitErr *RateLimitError
	if errors.As(lastErr, &rateLimitErr) && rateLimitErr.HasRetryAfter {
		return rateLimitErr.RetryAfter
	}
	return r.backoff(attempt)
}

func (r *Retrier) shouldRetry(err error) bool {
	switch KindOf(err) {
	case KindRateLimit:
		return r.retryOnRateLimit
	case KindGeneric:
		return IsServiceError(err)
	default:
		return false
	}
}

func (r *Retrier) backoff(attempt int) time.Duration {
	// Cap attempt to prevent overflow
	if attempt > 10 {
		attempt = 10
	}

	mult := math.Pow(2, float64(attempt))
	wait := time.Duration(mult) * r.retryWaitMin

	// jitter of 0-100% of retryWaitMin
	jitter := time.Duration(rand.Int64N(int64(r.retryWaitMin)))
	wait += jitter

	if wait > r.retryWaitMax {
		wait = r.retryWaitMax
	}

	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

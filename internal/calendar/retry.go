package calendar

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// RetryProvider is a decorator that retries rate-limited and transient
// errors with exponential backoff and jitter.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) Create(ctx context.Context, token string, ev EventDescriptor) (*RemoteEvent, error) {
	return retry(ctx, r, func() (*RemoteEvent, error) { return r.inner.Create(ctx, token, ev) })
}

func (r *RetryProvider) Get(ctx context.Context, token, id string) (*RemoteEvent, error) {
	return retry(ctx, r, func() (*RemoteEvent, error) { return r.inner.Get(ctx, token, id) })
}

func (r *RetryProvider) Update(ctx context.Context, token, id string, p Patch) (*RemoteEvent, error) {
	return retry(ctx, r, func() (*RemoteEvent, error) { return r.inner.Update(ctx, token, id, p) })
}

func (r *RetryProvider) Delete(ctx context.Context, token, id string) error {
	_, err := retry(ctx, r, func() (struct{}, error) { return struct{}{}, r.inner.Delete(ctx, token, id) })
	return err
}

func (r *RetryProvider) List(ctx context.Context, token string, tr TimeRange) ([]RemoteEvent, error) {
	return retry(ctx, r, func() ([]RemoteEvent, error) { return r.inner.List(ctx, token, tr) })
}

func retry[T any](ctx context.Context, r *RetryProvider, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := range r.config.MaxAttempts {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return zero, err
		}

		// Last attempt: return the error without sleeping.
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		wait := r.backoff(attempt, err)
		select {
		case <-ctx.Done():
			return zero, &ErrTransient{Err: ctx.Err()}
		case <-time.After(wait):
		}
	}

	return zero, lastErr
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	// Context errors are never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Classify(err).Retryable()
}

// backoff computes the wait duration for the given attempt.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	// Respect RetryAfter for rate limits.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		if r.config.MaxWait > 0 && rl.RetryAfter > r.config.MaxWait {
			return r.config.MaxWait
		}
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// Add ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

package sessionclient

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// retryClient is a decorator that retries idempotent reads with
// exponential backoff and jitter. Session-mutating calls are passed
// through untouched: retrying them is the caller's decision.
type retryClient struct {
	API
	config RetryConfig
}

// WithRetry wraps an API with retry logic for reads.
func WithRetry(api API, cfg RetryConfig) API {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &retryClient{API: api, config: cfg}
}

func (r *retryClient) FetchStaticQuestions(ctx context.Context) ([]Question, error) {
	return retryRead(ctx, r, r.API.FetchStaticQuestions)
}

func (r *retryClient) FetchHistory(ctx context.Context) ([]SessionSummary, error) {
	return retryRead(ctx, r, r.API.FetchHistory)
}

func (r *retryClient) FetchSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	return retryRead(ctx, r, func(ctx context.Context) (*SessionDetail, error) {
		return r.API.FetchSessionDetail(ctx, sessionID)
	})
}

func retryRead[T any](ctx context.Context, r *retryClient, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := range r.config.MaxAttempts {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return zero, err
		}

		// Last attempt: don't sleep, just return the error.
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}

	return zero, lastErr
}

// shouldRetry determines if an error is worth another attempt.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// The server looked at the payload and said no.
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}

	var unavail *ServiceUnavailableError
	if errors.As(err, &unavail) {
		return unavail.Transient()
	}

	// Credential problems won't fix themselves between attempts.
	return false
}

// backoff computes the wait duration for the given attempt.
func (r *retryClient) backoff(attempt int) time.Duration {
	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

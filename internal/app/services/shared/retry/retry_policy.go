package retry

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/pkg/exceptions"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds the retries of one external call: at most MaxAttempts tries,
// exponential delay from BaseDelay capped at MaxDelay, and only for errors
// Retryable accepts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the backoff randomization factor, 0 disables it.
	Jitter    float64
	Retryable func(error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(err error, attempt int, delay time.Duration)
}

func NewPolicy(internalConfig *config.InternalConfig) Policy {
	return Policy{
		MaxAttempts: internalConfig.Export.RetryMaxAttempts,
		BaseDelay:   time.Duration(internalConfig.Export.RetryBaseDelayInMillis) * time.Millisecond,
		MaxDelay:    time.Duration(internalConfig.Export.RetryMaxDelayInMillis) * time.Millisecond,
		Multiplier:  2,
		Jitter:      0.2,
		Retryable:   exceptions.IsTransient,
	}
}

// NoRetry runs the operation exactly once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// WithRetryable returns a copy of p that retries only errors accepted by fn.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

func (p Policy) WithOnRetry(fn func(err error, attempt int, delay time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return exceptions.IsTransient(err)
	}
	return p.Retryable(err)
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = p.Jitter
	return b
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error from op is returned unchanged;
// ctx's error is returned only when op never ran.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempt := 0
	var lastErr error
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if ctx.Err() != nil || !p.retryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(err, attempt, delay)
			}
		}),
	)
	if err != nil && lastErr != nil {
		return result, lastErr
	}
	return result, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	_, err := Do(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return err
}

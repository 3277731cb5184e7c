package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts       uint    = 3
	DefaultInitialDelay              = 500 * time.Millisecond
	DefaultMaxDelay                  = 10 * time.Second
	DefaultBackoffMultiplier float64 = 2
)

// RetryConfig bounds an exponential retry loop. MaxAttempts counts the first
// attempt, so a value of 3 allows two retries.
type RetryConfig struct {
	MaxAttempts       uint
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

func (c *RetryConfig) Validate() error {
	if c == nil {
		return errors.New("retry config is required")
	}
	if c.MaxAttempts == 0 {
		return errors.New("max attempts must be at least 1")
	}
	if c.InitialDelay <= 0 {
		return errors.New("initial delay must be positive")
	}
	if c.BackoffMultiplier < 1 {
		return errors.New("backoff multiplier must be at least 1")
	}
	if c.MaxDelay != 0 && c.MaxDelay < c.InitialDelay {
		return errors.New("max delay must not be shorter than the initial delay")
	}
	return nil
}

// Delays lists the waits the policy inserts between consecutive attempts.
func (c *RetryConfig) Delays() []time.Duration {
	if c.MaxAttempts < 2 {
		return nil
	}

	b := c.newBackOff()
	delays := make([]time.Duration, 0, c.MaxAttempts-1)
	for i := uint(1); i < c.MaxAttempts; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

func (c *RetryConfig) newBackOff() *backoff.ExponentialBackOff {
	maxDelay := c.MaxDelay
	if maxDelay == 0 {
		maxDelay = backoff.DefaultMaxInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.Multiplier = c.BackoffMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = maxDelay
	b.Reset()
	return b
}

type RetryHook interface {
	OnRetryAttempt(ctx context.Context, attempt uint, err error, nextDelay time.Duration)
	OnRetrySuccess(ctx context.Context, attempts uint, totalDuration time.Duration)
	OnRetryFailure(ctx context.Context, err error, attempts uint, totalDuration time.Duration)
}

type Operation[T any] func(ctx context.Context, attempt uint) (T, error)

// Retry runs op until it succeeds, fails with an error that retryable rejects,
// or the attempt budget is spent. Waits between attempts end early when ctx is
// done. The returned error is always the one produced by the last attempt, or
// the context error if the wait was interrupted.
func Retry[T any](ctx context.Context, config *RetryConfig, retryable func(error) bool, op Operation[T], hooks ...RetryHook) (T, error) {
	if err := config.Validate(); err != nil {
		var zero T
		return zero, err
	}

	var attempt uint
	start := time.Now()

	result, err := backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			res, err := op(ctx, attempt)
			if err != nil && !retryable(err) {
				return res, backoff.Permanent(err)
			}
			return res, err
		},
		backoff.WithBackOff(config.newBackOff()),
		backoff.WithMaxTries(config.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			for _, hook := range hooks {
				hook.OnRetryAttempt(ctx, attempt, err, next)
			}
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	elapsed := time.Since(start)
	for _, hook := range hooks {
		if err != nil {
			hook.OnRetryFailure(ctx, err, attempt, elapsed)
		} else {
			hook.OnRetrySuccess(ctx, attempt, elapsed)
		}
	}

	return result, err
}

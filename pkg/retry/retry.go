package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ladderharvest/pkg/config"
	errs "ladderharvest/pkg/errors"
	"ladderharvest/pkg/logger"
)

// ErrMaxAttempts is wrapped by the error Do returns when the transient retry budget is spent
var ErrMaxAttempts = errors.New("max retry attempts exceeded")

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts bounds attempts that fail with transient errors (0 means unlimited).
	// Rate limit rejections are not counted against it.
	MaxAttempts int
	// Backoff is used between transient failures
	Backoff BackoffStrategy
	// RateLimitBackoff is used for rate limit rejections that carry no Retry-After
	RateLimitBackoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:      5,
		Backoff:          DefaultExponentialBackoff(),
		RateLimitBackoff: DefaultRateLimitBackoff(),
		RetryIf:          DefaultRetryIf,
		Logger:           logger.GetLogger(),
	}
}

// FromConfig builds a retry configuration from the retry section of the application config
func FromConfig(rc config.RetryConfig, log logger.Logger) *Config {
	return &Config{
		MaxAttempts: rc.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    rc.BaseDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   rc.Multiplier,
			JitterFactor: rc.JitterFactor,
		},
		RateLimitBackoff: DefaultRateLimitBackoff(),
		RetryIf:          DefaultRetryIf,
		Logger:           log,
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	// Untyped errors come from the transport layer and are worth another try
	return true
}

// Do executes an operation with retry logic.
// Rate limit rejections are retried until ctx is done; other retryable
// errors are retried at most MaxAttempts times in total.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	throttleBackoff := cfg.RateLimitBackoff
	if throttleBackoff == nil {
		throttleBackoff = DefaultRateLimitBackoff()
	}

	attempt := 0
	throttled := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			if attempt+throttled > 0 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempts":  attempt + 1,
					"throttled": throttled,
				})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}

		var delay time.Duration
		var apiErr *errs.Error
		if errors.As(err, &apiErr) && apiErr.Type == errs.ErrorTypeRateLimit {
			throttled++
			delay = apiErr.RetryAfter
			if delay <= 0 {
				delay = throttleBackoff.NextDelay(throttled)
			}
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("waiting out rate limit", map[string]interface{}{
					"throttled": throttled,
					"delay_ms":  delay.Milliseconds(),
				})
			}
		} else {
			attempt++
			if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
				if cfg.Logger != nil {
					cfg.Logger.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
						"attempts":   attempt,
						"last_error": err.Error(),
					})
				}
				return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, cfg.MaxAttempts, err)
			}
			delay = backoff.NextDelay(attempt)
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
					"attempt":      attempt,
					"error":        err.Error(),
					"delay_ms":     delay.Milliseconds(),
					"max_attempts": cfg.MaxAttempts,
				})
			}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+throttled, err, delay)
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)

	return result, err
}

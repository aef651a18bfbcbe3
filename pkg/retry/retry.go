package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legmirror/pkg/config"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/logger"
)

// Operation is one attempt of a retried call.
type Operation func() error

// OperationWithResult is an Operation producing a value.
type OperationWithResult[T any] func() (T, error)

// Config controls Do.
type Config struct {
	// MaxAttempts counts the first call. Zero means unlimited.
	MaxAttempts int
	Backoff     BackoffStrategy
	RetryIf     func(error) bool
	// OnRetry runs after a failed attempt, before the pause.
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// FromSettings builds a Config from the retry section of the config file.
// The throttling pause is capped by MaxDelay.
func FromSettings(s config.RetryConfig, log logger.Logger) *Config {
	return &Config{
		MaxAttempts: s.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    s.BaseDelay,
			MaxDelay:     s.MaxDelay,
			Multiplier:   s.Multiplier,
			JitterFactor: s.Jitter,
			SlowDown:     min(DefaultSlowDown, s.MaxDelay),
		},
		RetryIf: DefaultRetryIf,
		Logger:  log,
	}
}

// DefaultRetryIf follows the error taxonomy for typed errors and retries
// anything unclassified. A bare context error is never retried; a per-call
// timeout arrives wrapped as a network error and is.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return typed.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Config) retryable(err error) bool {
	if c.RetryIf == nil {
		return DefaultRetryIf(err)
	}
	return c.RetryIf(err)
}

func (c *Config) delay(attempt int, err error) time.Duration {
	if c.Backoff == nil {
		return 0
	}
	return c.Backoff.NextDelay(attempt, err)
}

func (c *Config) debug(msg string, fields map[string]any) {
	if c.Logger != nil {
		c.Logger.DebugWithFields(msg, fields)
	}
}

// Do calls op until it succeeds, fails with an error RetryIf rejects, or
// uses up MaxAttempts. ctx bounds the pauses between attempts only; after
// it is done no new attempt starts.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				cfg.debug("operation succeeded after retry", map[string]any{"attempt": attempt})
			}
			return nil
		}
		if !cfg.retryable(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			cfg.debug("max retry attempts exceeded", map[string]any{"attempts": attempt, "last_error": err.Error()})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		pause := cfg.delay(attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, pause)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]any{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     pause.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}
		if werr := Wait(ctx, pause); werr != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, errors.Join(err, werr))
		}
	}
}

// DoWithResult is Do for operations returning a value. The value of the
// last attempt is returned.
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T
	err := Do(ctx, func() (err error) {
		result, err = op()
		return err
	}, cfg)
	return result, err
}

package retry

import (
	"context"
	"time"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	MaxAttempts  int           `json:"max_attempts"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  5,
	}
}

// Delay computes the exponential backoff delay for a 1-based attempt
// number: initial * 2^(attempt-1), capped at max. It is a pure function;
// worker poll loops do not use it, only bounded retries around single
// remote calls do.
func Delay(initial, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}

	if delay > max {
		delay = max
	}
	return delay
}

// Backoff wraps a single remote call with bounded exponential retry.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	return &Backoff{
		config: config,
	}
}

// Retry executes the operation until it succeeds, the attempt budget is
// exhausted, or ctx is cancelled. The last error is returned on failure.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't wait after the last attempt
		if attempt == b.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.NextDelay(attempt)):
		}
	}

	return lastErr
}

// NextDelay returns the delay that would follow the given attempt.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	return Delay(b.config.InitialDelay, b.config.MaxDelay, attempt)
}

// Package retry decides whether a failed provider invocation is worth
// repeating and how long to back off before doing so.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/davidbz/kiln/internal/domain"
)

const (
	// jitterFraction randomizes each delay by up to this share of its
	// computed value to avoid synchronized retries.
	jitterFraction = 0.1

	// maxExponent caps the backoff exponent to keep the multiplication
	// from overflowing.
	maxExponent = 30
)

// Config holds the backoff parameters. Computed delays always land in
// [0, MaxDelay].
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultConfig returns the retry parameters used when none are supplied.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// Delay computes the backoff for the given zero-based attempt:
// BaseDelay * Multiplier^attempt plus random jitter, capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}

	multiplier := c.Multiplier
	if multiplier <= 1 {
		multiplier = 1
	}

	delay := time.Duration(float64(c.BaseDelay) * math.Pow(multiplier, float64(attempt)))
	if delay < 0 || delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64())
	if delay+jitter > c.MaxDelay {
		return c.MaxDelay
	}
	return delay + jitter
}

// ShouldRetry maps (error, attempt) to a backoff delay and a retry
// decision. Non-retryable errors and exhausted budgets end the sequence.
func (c Config) ShouldRetry(err error, attempt int) (time.Duration, bool) {
	if attempt >= c.MaxRetries {
		return 0, false
	}
	if !domain.Retryable(err) {
		return 0, false
	}
	return c.Delay(attempt), true
}

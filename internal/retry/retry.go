package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"nimbus/internal/domain"
)

// =============================================================================
// Config
// =============================================================================

// Config controls retry behaviour for external API calls.
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration // Delay before first retry
	MaxBackoff     time.Duration // Upper bound on backoff duration
	Multiplier     float64       // Backoff multiplier (e.g. 2.0 for exponential)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// FromDomain converts the millisecond-valued config section into a Config.
func FromDomain(rc domain.RetryConfig) Config {
	return Config{
		MaxRetries:     rc.MaxRetries,
		InitialBackoff: time.Duration(rc.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoff) * time.Millisecond,
		Multiplier:     float64(rc.Multiplier),
	}
}

// Validate checks that all Config fields are within acceptable ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if c.InitialBackoff <= 0 {
		return errors.New("retry: InitialBackoff must be > 0")
	}
	if c.MaxBackoff <= 0 {
		return errors.New("retry: MaxBackoff must be > 0")
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

// =============================================================================
// Error Classification
// =============================================================================

// retryableStatusCodes are HTTP status codes that indicate a transient failure.
var retryableStatusCodes = []string{"429", "500", "502", "503", "504", "529"}

// IsRetryable returns true when err represents a transient failure that may
// succeed on retry (5xx, 429, timeout, connection refused, EOF).
// Context errors (Canceled, DeadlineExceeded) are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()

	for _, code := range retryableStatusCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}

	if strings.Contains(msg, "connection refused") {
		return true
	}
	if strings.Contains(msg, "EOF") {
		return true
	}

	return false
}

// =============================================================================
// Retrier
// =============================================================================

// Retrier reruns an operation on transient errors with exponential backoff.
// The reasoning backend wraps its completion round trip with one.
type Retrier struct {
	config    Config
	sleepFunc func(time.Duration) // injectable for testing
}

// New returns a Retrier for the given config.
func New(cfg Config) *Retrier {
	return &Retrier{config: cfg, sleepFunc: time.Sleep}
}

// Do runs op and retries on transient errors until MaxRetries is exhausted.
// Returns nil on the first success, the original error for non-retryable
// failures, or a wrapped last error once retries run out.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == r.config.MaxRetries {
			break
		}

		r.sleepFunc(backoff)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		next := time.Duration(float64(backoff) * r.config.Multiplier)
		if next > r.config.MaxBackoff {
			next = r.config.MaxBackoff
		}
		backoff = next
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// Package retry provides bounded exponential backoff for transient fetch failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// ErrExhausted is wrapped by Do when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// Default retry values.
const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = 1 * time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultJitter        = 0.2
)

// Config configures a Policy.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps every delay, jitter included.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// Jitter is the relative spread applied to sleeps, e.g. 0.2 for ±20%.
	// Zero gives fixed delays.
	Jitter float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
		Jitter:        DefaultJitter,
	}
}

// Retryable is implemented by errors that know whether repeating the
// operation can help. Fetch errors implement it.
type Retryable interface {
	Retryable() bool
}

// Policy decides whether and when to retry a failed fetch.
type Policy struct {
	cfg Config

	// sleep waits for d or until ctx ends. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// rand returns a float in [0,1). Replaced in tests.
	rand func() float64
}

// New creates a Policy. Zero or invalid fields fall back to the defaults.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = def.Jitter
	}

	return &Policy{
		cfg:   cfg,
		sleep: sleepContext,
		rand:  rand.Float64,
	}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// MaxAttempts returns the total number of attempts allowed.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// BackoffDelay returns the base delay after failed attempt n (1-indexed):
// min(MaxDelay, InitialDelay * BackoffFactor^(n-1)). It is non-decreasing in n.
func (p *Policy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffFactor, float64(attempt-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(p.cfg.MaxDelay) {
		return p.cfg.MaxDelay
	}
	return time.Duration(d)
}

// jittered spreads the base delay by ±Jitter and clamps it to MaxDelay.
func (p *Policy) jittered(attempt int) time.Duration {
	base := p.BackoffDelay(attempt)
	if p.cfg.Jitter == 0 {
		return base
	}

	spread := (p.rand()*2 - 1) * p.cfg.Jitter
	d := time.Duration(float64(base) * (1 + spread))
	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ShouldRetry reports whether another attempt should follow failed attempt n.
// Fatal errors stop immediately regardless of remaining attempts.
func (p *Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.cfg.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// IsRetryable classifies err. Timeouts, network failures and server errors
// are retryable; permanent client errors, malformed URLs, store errors and
// cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Do calls fn until it succeeds, fails with a fatal error, or attempts run
// out. fn receives the 1-indexed attempt number. Do returns the number of
// attempts made. On exhaustion the error wraps both ErrExhausted and the last
// failure. Cancellation of ctx interrupts the backoff sleep immediately.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w (last error: %w)", err, lastErr)
			}
			return attempt - 1, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return attempt, err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		if sleepErr := p.sleep(ctx, p.jittered(attempt)); sleepErr != nil {
			return attempt, fmt.Errorf("%w (last error: %w)", sleepErr, lastErr)
		}
	}

	return p.cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.cfg.MaxAttempts, lastErr)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

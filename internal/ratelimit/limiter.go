// Package ratelimit paces outgoing requests of a crawl run.
//
// A Limiter combines a token bucket, which allows short bursts up to a
// capacity while enforcing an average refill rate, with a fixed minimum delay
// that is applied after every acquisition. The delay is a hard floor on the
// spacing between requests regardless of how many tokens are left.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Default pacing values. One request every two seconds on average with a
// burst of two is polite towards government sites that are often slow.
const (
	DefaultCapacity        = 2
	DefaultRefillRatePerMs = 0.0005
	DefaultMinDelay        = 500 * time.Millisecond
)

// ErrInvalidConfig is returned by New when the configuration cannot produce
// a working bucket.
var ErrInvalidConfig = errors.New("invalid rate limit configuration")

// Config configures a Limiter.
type Config struct {
	// Capacity is the maximum number of tokens (burst size). Must be >= 1.
	Capacity int

	// RefillRatePerMs is the number of tokens added per millisecond. Must be > 0.
	RefillRatePerMs float64

	// MinDelay is slept after every acquisition. Zero disables it.
	MinDelay time.Duration
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:        DefaultCapacity,
		RefillRatePerMs: DefaultRefillRatePerMs,
		MinDelay:        DefaultMinDelay,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("capacity must be at least 1"))
	}
	if c.RefillRatePerMs <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("refill rate must be positive"))
	}
	if c.MinDelay < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("min delay must be non-negative"))
	}
	return nil
}

// Limiter is a token bucket with a minimum inter-request delay.
// It is safe for concurrent use; one Limiter is shared by every worker of a run.
type Limiter struct {
	bucket   *rate.Limiter
	capacity int
	minDelay time.Duration

	// turn serializes Acquire calls. It is a channel rather than a mutex so
	// that waiting for the turn can be abandoned when ctx is cancelled.
	turn chan struct{}
}

// New creates a Limiter. The bucket starts full.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	perSecond := rate.Limit(cfg.RefillRatePerMs * float64(time.Second/time.Millisecond))

	return &Limiter{
		bucket:   rate.NewLimiter(perSecond, cfg.Capacity),
		capacity: cfg.Capacity,
		minDelay: cfg.MinDelay,
		turn:     make(chan struct{}, 1),
	}, nil
}

// Acquire blocks until a token is available, consumes it and then sleeps the
// minimum delay. Calls are mutually exclusive, so the delay bounds the spacing
// of the aggregate request stream. The only error is ctx's.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	if err := l.bucket.Wait(ctx); err != nil {
		// rate.Limiter reports a deadline it cannot meet with its own error;
		// callers only care that the context ended.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	if l.minDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(l.minDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentTokens returns the number of tokens available now, after refill.
// It never consumes a token.
func (l *Limiter) CurrentTokens() float64 {
	return l.bucket.Tokens()
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// MinDelay returns the enforced spacing between acquisitions.
func (l *Limiter) MinDelay() time.Duration {
	return l.minDelay
}

// Package backoff provides retry with exponential backoff and jitter.
//
// Every pipeline stage uses the same delay schedule: the stage loops call
// Delay directly when re-enqueueing a failed envelope, and operations
// against external collaborators run under Do.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Default policy values applied when a Policy field is zero.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 250 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultJitterFactor = 0.2
)

// Policy describes one retry schedule.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay regardless of attempt count.
	MaxDelay time.Duration
	// JitterFactor adds uniform(0, delay*JitterFactor) to each delay.
	JitterFactor float64
}

// Default returns the standard pipeline policy.
func Default() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	return p
}

// ExhaustedError is returned by Do when every attempt has failed.
// It wraps the last underlying error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// RateLimited is implemented by errors that carry an explicit wait hint
// from an upstream service (e.g. a Retry-After header). Do honors the
// hint in place of the computed exponential delay.
type RateLimited interface {
	RetryAfter() time.Duration
}

// Delay returns the sleep duration before retry number attempt (zero-based),
// jitter included. Delays double per attempt and are capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := p.InitialDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterFactor > 0 {
		delay += time.Duration(rand.Float64() * p.JitterFactor * float64(delay))
	}
	return delay
}

// Do invokes op until it succeeds, the policy is exhausted, or ctx is
// cancelled. After MaxRetries failed retries it returns an *ExhaustedError
// carrying the total attempt count and the last error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.normalized()
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		delay := p.Delay(attempt)
		var rl RateLimited
		if errors.As(lastErr, &rl) {
			delay = p.rateLimitDelay(rl.RetryAfter())
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: p.MaxRetries + 1, LastErr: lastErr}
}

// RateLimitWait sleeps for an upstream-provided wait hint, capped at
// MaxDelay. A zero or negative hint falls back to InitialDelay.
func (p Policy) RateLimitWait(ctx context.Context, retryAfter time.Duration) error {
	return Sleep(ctx, p.normalized().rateLimitDelay(retryAfter))
}

func (p Policy) rateLimitDelay(retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		return p.InitialDelay
	}
	if retryAfter > p.MaxDelay {
		return p.MaxDelay
	}
	return retryAfter
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

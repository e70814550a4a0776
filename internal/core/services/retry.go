package services

import (
	"context"
	"math"
	"time"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// MaxRetryDelay caps any single wait, including provider Retry-After hints.
const MaxRetryDelay = 30 * time.Second

// RetryPolicy decides whether a failed backend attempt is retried and how
// long to wait first. Auth and unclassified failures are never retried.
type RetryPolicy struct {
	BaseDelay           time.Duration
	Multiplier          float64
	MaxRateLimitRetries int
	MaxNetworkRetries   int
}

// NewRetryPolicy derives the policy from engine settings.
func NewRetryPolicy(s domain.EngineSettings) RetryPolicy {
	return RetryPolicy{
		BaseDelay:           s.BaseDelay,
		Multiplier:          s.Multiplier,
		MaxRateLimitRetries: s.MaxRateLimitRetries,
		MaxNetworkRetries:   s.MaxNetworkRetries,
	}
}

// MaxRetries returns how many retries a failure of the given kind gets.
func (p RetryPolicy) MaxRetries(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindRateLimit, domain.ErrorKindTimeout:
		return p.MaxRateLimitRetries
	case domain.ErrorKindNetwork:
		return p.MaxNetworkRetries
	default:
		return 0
	}
}

// ShouldRetry reports whether another attempt is allowed after err, given
// the number of retries already made.
func (p RetryPolicy) ShouldRetry(err error, retries int) bool {
	return retries < p.MaxRetries(domain.ClassifyError(err))
}

// Delay returns the wait before retry number n (0-based):
// BaseDelay * Multiplier^n, or the provider's hint when that is longer.
func (p RetryPolicy) Delay(n int, hint time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(n)))
	if hint > d {
		d = hint
	}
	if d > MaxRetryDelay {
		d = MaxRetryDelay
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// contextSleep is the production SleepFunc.
func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior. A Policy is immutable once constructed
// and may be shared across many concurrent invocations.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	// Timeout bounds the whole retry loop, not an individual attempt.
	// Zero means no wall-clock ceiling.
	Timeout time.Duration
	// RetryIf reports whether an error is retryable. Nil retries any error.
	RetryIf func(error) bool
	// Reporter, when set, receives every failed attempt.
	Reporter Reporter
}

// Reporter receives failed attempts, typically the error classifier.
type Reporter interface {
	ReportRetry(ctx context.Context, attempt int, delay time.Duration, err error)
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    60 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
}

// Delay computes the backoff for a 1-based attempt number, without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(base) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// delay applies jitter on top of Delay when enabled: a uniform factor
// in [0.5, 1.5) to avoid synchronized retry storms.
func (p Policy) delay(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.RetryIf == nil {
		return true
	}
	return p.RetryIf(err)
}

// Sleep waits for d or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
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

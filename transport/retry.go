package transport

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/goliatone/go-paykit/core"
)

// RetryPolicy decides whether and when a failed attempt is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single backoff wait; zero leaves it uncapped.
	MaxDelay time.Duration
	// Retryable is the set of classifications that may be retried.
	Retryable         map[core.Classification]struct{}
	RespectRetryAfter bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Retryable: RetryableSet(
			core.ClassRateLimit,
			core.ClassConnection,
			core.ClassTimeout,
			core.ClassInternalServerError,
			core.ClassBadGateway,
			core.ClassServiceUnavailable,
			core.ClassGatewayTimeout,
		),
	}
}

// NoRetry performs a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func RetryableSet(classes ...core.Classification) map[core.Classification]struct{} {
	set := make(map[core.Classification]struct{}, len(classes))
	for _, class := range classes {
		if class.Valid() {
			set[class] = struct{}{}
		}
	}
	return set
}

// RetryPolicyFromConfig converts the configuration section into a policy.
func RetryPolicyFromConfig(cfg core.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.BaseDelay,
		MaxDelay:          cfg.MaxDelay,
		Retryable:         RetryableSet(cfg.RetryableClassifications()...),
		RespectRetryAfter: cfg.RespectRetryAfter,
	}.normalized()
}

func (p RetryPolicy) normalized() RetryPolicy {
	out := p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.BaseDelay < 0 {
		out.BaseDelay = 0
	}
	if out.MaxDelay < 0 {
		out.MaxDelay = 0
	}
	out.Retryable = make(map[core.Classification]struct{}, len(p.Retryable))
	for class := range p.Retryable {
		out.Retryable[class] = struct{}{}
	}
	return out
}

func (p RetryPolicy) IsRetryable(class core.Classification) bool {
	_, ok := p.Retryable[class]
	return ok
}

// ShouldRetry reports whether another attempt follows a failed attempt.
func (p RetryPolicy) ShouldRetry(class core.Classification, attempt int) bool {
	return attempt < p.MaxAttempts && p.IsRetryable(class)
}

// Backoff returns BaseDelay x 2^(attempt-1) before jitter, capped by MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	out := time.Duration(math.MaxInt64)
	if delay < float64(math.MaxInt64) {
		out = time.Duration(delay)
	}
	if p.MaxDelay > 0 && out > p.MaxDelay {
		return p.MaxDelay
	}
	return out
}

// Delay applies a jitter factor, clamped to [0.5, 1.0], to the backoff.
func (p RetryPolicy) Delay(attempt int, jitter float64) time.Duration {
	if jitter < 0.5 {
		jitter = 0.5
	}
	if jitter > 1 {
		jitter = 1
	}
	backoff := p.Backoff(attempt)
	delay := float64(backoff) * jitter
	if delay >= float64(math.MaxInt64) {
		return backoff
	}
	return time.Duration(delay)
}

// DefaultJitter draws a factor uniformly from [0.5, 1.0).
func DefaultJitter() float64 {
	return 0.5 + rand.Float64()*0.5
}

// Sleep waits for d or until ctx is done.
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

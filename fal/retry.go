package fal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defaults.
const (
	DefaultThrottleDelay     = 1500 * time.Millisecond
	DefaultMaxAttempts       = 5
	DefaultInitialRetryDelay = 2 * time.Second
	DefaultRetryMultiplier   = 2.0
	DefaultMaxRetryDelay     = 60 * time.Second
)

// RetryPolicy controls throttling and retries for one generation request.
// The budget is per request; nothing is shared across requests.
type RetryPolicy struct {
	// ThrottleDelay is slept before every generation request.
	ThrottleDelay time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay before retry k is InitialDelay * Multiplier^(k-1), capped at MaxDelay.
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the 1.5s throttle, 5 attempts, 2s doubling to 60s policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ThrottleDelay: DefaultThrottleDelay,
		MaxAttempts:   DefaultMaxAttempts,
		InitialDelay:  DefaultInitialRetryDelay,
		Multiplier:    DefaultRetryMultiplier,
		MaxDelay:      DefaultMaxRetryDelay,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// newBackOff builds the jitter-free exponential schedule bounded by MaxAttempts.
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOffContext {
	p = p.normalized()
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Delays returns the sleep before each retry, in order. Its length is MaxAttempts-1.
func (p RetryPolicy) Delays() []time.Duration {
	b := p.newBackOff(context.Background())
	var delays []time.Duration
	for {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return delays
		}
		delays = append(delays, d)
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the production Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
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

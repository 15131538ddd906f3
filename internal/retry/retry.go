package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy returns how long to wait before retry number attempt (1-based).
type Policy interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same interval before every retry.
// A zero interval retries immediately.
type Fixed time.Duration

// Delay returns the fixed interval.
func (f Fixed) Delay(int) time.Duration {
	if f < 0 {
		return 0
	}
	return time.Duration(f)
}

// Exponential implements exponential backoff with jitter.
// The delay is base * 2^(attempt-1), jittered by ±25% and capped at Max.
//
// Thread Safety: the struct is immutable after creation and math/rand's
// top-level functions are safe for concurrent use.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential returns an exponential policy, replacing non-positive
// arguments with 100ms base and 30s max.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns the backoff for the given attempt.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := math.Min(float64(attempt-1), 32)
	delay := e.Max
	if d := float64(e.Base) * math.Pow(2, exp); d < float64(e.Max) {
		delay = time.Duration(d)
	}

	jitterRange := int64(float64(delay) * 0.25)
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange)
	}

	if delay > e.Max {
		delay = e.Max
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package stepflow

import "time"

// RetryBuilder provides a fluent way to configure retries for use with
// WithRetry.
type RetryBuilder struct {
	retries int
	backoff *ExponentialBackoff
}

// Retry creates a RetryBuilder allowing the given number of retries after
// the first attempt.
//
// retries < 0 is treated as 0 (no retries).
func Retry(retries int) RetryBuilder {
	return RetryBuilder{retries: max(retries, 0)}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each retry (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	r.backoff = &ExponentialBackoff{Initial: initial, Multiplier: multiplier, Max: max}
	return r
}

// WithConstantBackoff configures a constant delay between retries.
//
// This is equivalent to an exponential backoff with multiplier 1.0 and
// no max cap.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	r.backoff = &ExponentialBackoff{Initial: delay, Multiplier: 1.0}
	return r
}

// Immediate disables any sleep between retries.
func (r RetryBuilder) Immediate() RetryBuilder {
	r.backoff = nil
	return r
}

// Retries returns the configured number of retries.
func (r RetryBuilder) Retries() int { return r.retries }

// Backoff returns the configured backoff, or nil for immediate retries.
func (r RetryBuilder) Backoff() Backoff {
	if r.backoff == nil {
		return nil
	}
	return r.backoff
}

// ExponentialBackoff grows the delay by Multiplier on every retry:
// Delay(n) = min(Initial * Multiplier^(n-1), Max).
type ExponentialBackoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// Delay returns the wait before retry n (1-indexed).
func (b *ExponentialBackoff) Delay(n int) time.Duration {
	d := float64(b.Initial)
	for i := 1; i < n; i++ {
		d *= b.Multiplier
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

package cloudpoll

import (
	"math"
	"math/rand"
	"time"
)

// BackoffFunc returns the delay to wait before the next attempt.
// attempt is zero-based: attempt 0 is the delay after the first try.
// Implementations must be stateless and safe for concurrent use.
type BackoffFunc func(attempt int) time.Duration

// maxInterval bounds uncapped growth so the float conversion cannot overflow.
const maxInterval = time.Duration(math.MaxInt64 / 2)

// ExponentialBackoffOpts configures [ExponentialBackoff].
type ExponentialBackoffOpts struct {
	// Base is the delay for attempt 0. Must be > 0; non-positive values
	// fall back to 1s.
	Base time.Duration

	// Multiplier is the growth factor between attempts. Must be > 1;
	// smaller values fall back to 2.
	Multiplier float64

	// Cap limits the raw delay. A non-positive Cap leaves growth unbounded.
	Cap time.Duration

	// Jitter scales each delay by a uniform random factor in
	// [1-Jitter, 1+Jitter]. Must be in [0, 1); values outside that range
	// fall back to 0 (deterministic delays).
	Jitter float64
}

// ExponentialBackoff returns a BackoffFunc computing
// min(Base * Multiplier^attempt, Cap), optionally jittered.
//
// With Jitter == 0 the sequence is deterministic: Base for attempt 0,
// geometric growth until Cap, then constant Cap. Base 1s, Multiplier 2 and
// Cap 5s yields 1s, 2s, 4s, 5s, 5s, ...
func ExponentialBackoff(opts ExponentialBackoffOpts) BackoffFunc {
	base := opts.Base
	if base <= 0 {
		base = time.Second
	}
	multiplier := opts.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	jitter := opts.Jitter
	if jitter < 0 || jitter >= 1 {
		jitter = 0
	}

	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}

		raw := float64(base) * math.Pow(multiplier, float64(attempt))
		if opts.Cap > 0 && raw > float64(opts.Cap) {
			raw = float64(opts.Cap)
		}
		if jitter > 0 {
			raw *= 1 - jitter + rand.Float64()*2*jitter
		}

		if raw > float64(maxInterval) {
			return maxInterval
		}
		if raw < 0 {
			return 0
		}
		return time.Duration(raw)
	}
}

// ConstantBackoff returns a BackoffFunc that waits d between every attempt.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration {
		return d
	}
}

// DefaultBackoff is the poll interval used when no BackoffFunc is
// configured: 1s doubling to a 5s cap, no jitter. Most provider actions
// finish within a few polls at this cadence.
func DefaultBackoff() BackoffFunc {
	return ExponentialBackoff(ExponentialBackoffOpts{
		Base:       time.Second,
		Multiplier: 2,
		Cap:        5 * time.Second,
	})
}

package opkit

import (
	"math"
	"math/rand"
	"time"
)

// BackoffFunc computes the delay before retry attempt n (1-indexed; n==0 is
// used for the "no retries yet" case and conventionally returns 0).
type BackoffFunc func(attempt int) time.Duration

// NoBackoff never delays.
func NoBackoff(int) time.Duration { return 0 }

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// LinearBackoff waits step*n before attempt n.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		if n <= 0 {
			return 0
		}
		return step * time.Duration(n)
	}
}

// ExponentialBackoff waits base*2^(n-1) before attempt n, and 0 at n==0.
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		if n <= 0 {
			return 0
		}
		return time.Duration(float64(base) * math.Pow(2, float64(n-1)))
	}
}

// FibonacciBackoff waits step*fib(n) before attempt n.
func FibonacciBackoff(step time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		if n <= 0 {
			return 0
		}
		a, b := 0, 1
		for i := 1; i < n; i++ {
			a, b = b, a+b
		}
		return step * time.Duration(b)
	}
}

// Jittered multiplies base's output by a uniform random value in (0, 1],
// drawn from rng. A nil rng uses the package-level default source.
func Jittered(base BackoffFunc, rng *rand.Rand) BackoffFunc {
	return func(n int) time.Duration {
		d := base(n)
		if d <= 0 {
			return d
		}
		var factor float64
		if rng != nil {
			factor = rng.Float64()
		} else {
			factor = rand.Float64() //nolint:gosec // jitter, not a security boundary
		}
		if factor == 0 {
			factor = 1
		}
		return time.Duration(float64(d) * factor)
	}
}

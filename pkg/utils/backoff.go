package utils

import (
	"math"
	"math/rand"
	"time"
)

// CalculateExponentialBackoffWithJitter computes a jittered exponential backoff delay.
// - count: Retry attempt number (1-based, e.g., 1 for first retry)
// - base: Base delay (e.g., 10 * time.Millisecond)
// - max: Maximum allowable delay (e.g., 250 * time.Millisecond)
// Returns the calculated duration with jitter.
func CalculateExponentialBackoffWithJitter(count int, base time.Duration, max time.Duration) time.Duration {
	if count <= 0 || base <= 0 {
		return 0
	}

	// Exponential backoff: base * 2^(count-1), clamped before it can overflow
	exp := math.Pow(2, float64(count-1))
	if exp > float64(max/base) {
		exp = float64(max / base)
	}
	baseDelay := time.Duration(float64(base) * exp)

	// Add jitter: -12.5% to +12.5% of baseDelay to avoid synchronization
	delay := baseDelay
	if spread := int64(baseDelay / 4); spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - (baseDelay / 8)
	}

	// Cap at max delay
	if delay > max {
		delay = max
	}
	return delay
}

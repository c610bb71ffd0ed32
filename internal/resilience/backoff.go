package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls exponential backoff with jitter.
type BackoffConfig struct {
	// Initial is the base delay before the first retry. Default: 1s.
	Initial time.Duration

	// Max caps the computed delay. Default: 60s.
	Max time.Duration

	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction perturbs the computed delay by ±fraction to avoid
	// synchronized retry storms. Default: 0.2.
	JitterFraction float64
}

// DefaultBackoffConfig returns the backoff used for generation requests.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:        1 * time.Second,
		Max:            60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = 1 * time.Second
	}
	if c.Max <= 0 {
		c.Max = 60 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	return c
}

// Delay computes the backoff before retry number attempt (0-based): the
// capped exponential delay perturbed by jitter.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	c = c.withDefaults()

	delay := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.Max) {
		delay = float64(c.Max)
	}

	if c.JitterFraction > 0 {
		jitterRange := delay * c.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange // [-jitterRange, +jitterRange]
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

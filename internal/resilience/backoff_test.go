package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	cfg := BackoffConfig{
		Initial:        1 * time.Second,
		Max:            60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0, // deterministic
	}

	assert.Equal(t, 1*time.Second, cfg.Delay(0))
	assert.Equal(t, 2*time.Second, cfg.Delay(1))
	assert.Equal(t, 4*time.Second, cfg.Delay(2))
	assert.Equal(t, 32*time.Second, cfg.Delay(5))
	// 2^7 = 128s exceeds the cap.
	assert.Equal(t, 60*time.Second, cfg.Delay(7))
	assert.Equal(t, 60*time.Second, cfg.Delay(20))
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := DefaultBackoffConfig()

	for attempt := 0; attempt < 6; attempt++ {
		base := float64(cfg.Initial) * float64(int(1)<<uint(attempt))
		if base > float64(cfg.Max) {
			base = float64(cfg.Max)
		}
		lo := time.Duration(base * (1 - cfg.JitterFraction))
		hi := time.Duration(base * (1 + cfg.JitterFraction))

		for i := 0; i < 50; i++ {
			d := cfg.Delay(attempt)
			assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
			assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
		}
	}
}

func TestDelayZeroConfigUsesDefaults(t *testing.T) {
	var cfg BackoffConfig

	d := cfg.Delay(0)
	assert.GreaterOrEqual(t, d, 800*time.Millisecond)
	assert.LessOrEqual(t, d, 1200*time.Millisecond)
}

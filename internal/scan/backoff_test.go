package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayGrowsExponentially(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tt := range tests {
		d := b.Delay(tt.attempt)
		// Jitter adds up to 20% on top of the exponential base.
		assert.GreaterOrEqual(t, d, tt.base, "attempt %d", tt.attempt)
		assert.LessOrEqual(t, d, tt.base+tt.base/5, "attempt %d", tt.attempt)
	}
}

func TestBackoff_DelayCapsAtMax(t *testing.T) {
	b := DefaultBackoff()

	for attempt := 6; attempt < 20; attempt++ {
		d := b.Delay(attempt)
		assert.LessOrEqual(t, d, b.Max, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, 60*time.Second, "attempt %d", attempt)
	}
}

func TestBackoff_JitterVaries(t *testing.T) {
	b := Backoff{Base: time.Second, Multiplier: 2, Max: time.Minute}

	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		seen[b.Delay(3)] = true
	}
	// 50 draws over a 1.6s jitter window collapsing to one value would mean
	// the jitter term is gone.
	assert.Greater(t, len(seen), 1)
}

package scan

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with jitter:
// min(Max, Base * Multiplier^attempt) plus up to 20% random jitter, so a
// burst of iterations failing on a shared rate limit does not resubmit in
// lockstep.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff returns the standard retry schedule: 1s base, doubling,
// capped at 60s.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		Multiplier: 2,
		Max:        60 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	exp := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if exp > float64(b.Max) {
		exp = float64(b.Max)
	}
	jitter := rand.Float64() * 0.2 * exp
	d := time.Duration(exp + jitter)
	if d > b.Max {
		d = b.Max
	}
	return d
}

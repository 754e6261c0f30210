package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure("openai")
		assert.False(t, b.IsOpen("openai"), "breaker open after %d failures", i+1)
	}
	b.RecordFailure("openai")
	assert.True(t, b.IsOpen("openai"))
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	b.RecordFailure("openai")
	b.RecordFailure("openai")

	assert.True(t, b.IsOpen("openai"))
	assert.False(t, b.IsOpen("anthropic"))
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure("openai")
	b.RecordFailure("openai")
	b.RecordSuccess("openai")

	assert.Equal(t, 0, b.Failures("openai"))

	// The count starts over: two more failures must not open the breaker.
	b.RecordFailure("openai")
	b.RecordFailure("openai")
	assert.False(t, b.IsOpen("openai"))
}

func TestBreaker_HalfOpensAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure("openai")
	b.RecordFailure("openai")
	assert.True(t, b.IsOpen("openai"))

	// Still inside the cooldown window.
	now = now.Add(59 * time.Second)
	assert.True(t, b.IsOpen("openai"))

	// Cooldown elapsed: the breaker half-opens and the counter resets.
	now = now.Add(2 * time.Second)
	assert.False(t, b.IsOpen("openai"))
	assert.Equal(t, 0, b.Failures("openai"))

	// One failure after half-open is below threshold; it takes a full run of
	// consecutive failures to open again.
	b.RecordFailure("openai")
	assert.False(t, b.IsOpen("openai"))
	b.RecordFailure("openai")
	assert.True(t, b.IsOpen("openai"))
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 60*time.Second, b.cooldown)
}

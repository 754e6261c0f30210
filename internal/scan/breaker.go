package scan

import (
	"sync"
	"time"
)

type breakerEntry struct {
	failures    int
	lastFailure time.Time
	open        bool
}

// Breaker is a per-dependency circuit breaker keyed by provider name. It is
// process-local and best-effort: it bounds worst-case call volume in this
// worker but is not a global rate-limit authority. State is lost on restart,
// which is fine — a fresh process gets a fresh chance.
type Breaker struct {
	mu        sync.Mutex
	entries   map[string]*breakerEntry
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewBreaker creates a Breaker that opens after threshold consecutive
// failures and half-opens once cooldown has elapsed.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{
		entries:   make(map[string]*breakerEntry),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// IsOpen reports whether calls to key should be short-circuited. Once the
// cooldown window has elapsed the breaker half-opens: the counter resets and
// the next call is allowed through.
func (b *Breaker) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok || !e.open {
		return false
	}
	if b.now().Sub(e.lastFailure) >= b.cooldown {
		e.open = false
		e.failures = 0
		return false
	}
	return true
}

// RecordFailure increments the failure count for key and opens the breaker
// once the threshold is reached.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &breakerEntry{}
		b.entries[key] = e
	}
	e.failures++
	e.lastFailure = b.now()
	if e.failures >= b.threshold {
		e.open = true
	}
}

// RecordSuccess resets the failure count for key.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[key]; ok {
		e.failures = 0
		e.open = false
	}
}

// Failures returns the current failure count for key.
func (b *Breaker) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[key]; ok {
		return e.failures
	}
	return 0
}

// internal/ratelimit/bucket.go
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket with lazy refill: tokens are recomputed on every
// access from the elapsed wall time, so no background timer is needed and the
// arithmetic is exact regardless of call frequency.
type Bucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	lastRefill   time.Time
	nowFn        func() time.Time
}

// NewBucket creates a full bucket.
func NewBucket(capacity, refillPerSec float64) *Bucket {
	now := time.Now()
	return &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: refillPerSec,
		lastRefill:   now,
		nowFn:        time.Now,
	}
}

// refillLocked advances tokens by the elapsed time. Caller holds mu.
func (b *Bucket) refillLocked() {
	now := b.nowFn()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryConsume takes one token if available.
func (b *Bucket) TryConsume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// WaitTime returns how long until one token becomes available.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		return 0
	}
	missing := 1 - b.tokens
	return time.Duration(missing / b.refillPerSec * float64(time.Second))
}

// Tokens reports the current token count after refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

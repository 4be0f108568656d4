// ==================================
// File: internal/trading/cooldown.go
// ==================================
package trading

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solpulse/memebot/internal/metrics"
)

// CooldownTracker suppresses tokens that keep failing across the whole
// adapter cascade. After threshold consecutive failed swaps the token is
// benched for the window; expiry clears both the bench and the counter so
// the token starts fresh. Sub-threshold counts age out after one quiet
// window so the map cannot grow without bound.
type CooldownTracker struct {
	threshold int
	window    time.Duration
	metrics   *metrics.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*cooldownEntry

	nowFn func() time.Time
}

type cooldownEntry struct {
	failures    int
	lastFailure time.Time
	expiresAt   time.Time
}

// NewCooldownTracker creates a tracker with the given failure threshold and
// cooldown window.
func NewCooldownTracker(threshold int, window time.Duration, collector *metrics.Collector, logger *zap.Logger) *CooldownTracker {
	return &CooldownTracker{
		threshold: threshold,
		window:    window,
		metrics:   collector,
		logger:    logger.Named("cooldown"),
		entries:   make(map[string]*cooldownEntry),
		nowFn:     time.Now,
	}
}

// OnCooldown reports whether the token is currently benched and, if so,
// until when. An expired bench is cleared on the way through.
func (t *CooldownTracker) OnCooldown(token string) (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[token]
	if !ok {
		return false, time.Time{}
	}
	if entry.expiresAt.IsZero() {
		return false, time.Time{}
	}
	if t.nowFn().After(entry.expiresAt) {
		delete(t.entries, token)
		t.publishCountLocked()
		return false, time.Time{}
	}
	return true, entry.expiresAt
}

// RecordFailure counts one failed orchestrated swap. Crossing the threshold
// benches the token; the return value reports whether that just happened.
func (t *CooldownTracker) RecordFailure(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFn()
	t.pruneStaleLocked(now)

	entry, ok := t.entries[token]
	if !ok {
		entry = &cooldownEntry{}
		t.entries[token] = entry
	}
	entry.failures++
	entry.lastFailure = now
	if entry.failures < t.threshold || !entry.expiresAt.IsZero() {
		return false
	}

	entry.expiresAt = now.Add(t.window)
	t.publishCountLocked()
	t.logger.Warn("token placed on cooldown",
		zap.String("token", token),
		zap.Int("failures", entry.failures),
		zap.Time("until", entry.expiresAt))
	return true
}

// RecordSuccess clears the token's failure history.
func (t *CooldownTracker) RecordSuccess(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[token]; ok {
		delete(t.entries, token)
		t.publishCountLocked()
	}
}

// ActiveCount returns how many tokens are currently benched.
func (t *CooldownTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeCountLocked()
}

func (t *CooldownTracker) activeCountLocked() int {
	now := t.nowFn()
	count := 0
	for _, entry := range t.entries {
		if !entry.expiresAt.IsZero() && now.Before(entry.expiresAt) {
			count++
		}
	}
	return count
}

// pruneStaleLocked drops sub-threshold entries whose last failure is older
// than the window. Without this, tokens that fail slowly but never cross the
// threshold would keep their counts (and map slots) forever.
func (t *CooldownTracker) pruneStaleLocked(now time.Time) {
	for token, entry := range t.entries {
		if entry.expiresAt.IsZero() && now.Sub(entry.lastFailure) > t.window {
			delete(t.entries, token)
		}
	}
}

func (t *CooldownTracker) publishCountLocked() {
	if t.metrics != nil {
		t.metrics.SetActiveCooldowns(t.activeCountLocked())
	}
}

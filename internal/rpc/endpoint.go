// internal/rpc/endpoint.go
package rpc

import (
	"sync"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// Endpoint is one RPC provider with live health metrics. Endpoints are
// registered at startup and never deleted, only cooled down or deactivated.
type Endpoint struct {
	URL    string
	Tier   int
	Client *solanarpc.Client

	mu            sync.Mutex
	isActive      bool
	successCount  uint64
	failureCount  uint64
	totalLatency  time.Duration
	lastSuccessAt time.Time
	cooldownUntil time.Time
	requestTimes  []time.Time // sliding per-minute window
}

// EndpointMetrics is the caller-visible health snapshot.
type EndpointMetrics struct {
	SuccessRate  float64
	AvgLatencyMs float64
	IsFailed     bool
	Tier         int
}

// NewEndpoint creates an active endpoint with a fresh RPC client.
func NewEndpoint(url string, tier int) *Endpoint {
	return &Endpoint{
		URL:      url,
		Tier:     tier,
		Client:   solanarpc.New(url),
		isActive: true,
	}
}

// RecordResult updates metrics after a completed request.
func (e *Endpoint) RecordResult(success bool, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalLatency += latency
	if success {
		e.successCount++
		e.lastSuccessAt = time.Now()
	} else {
		e.failureCount++
	}
}

// TrackRequest records a dispatch timestamp in the per-minute window.
func (e *Endpoint) TrackRequest(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-time.Minute)
	kept := e.requestTimes[:0]
	for _, t := range e.requestTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.requestTimes = append(kept, now)
}

// RequestsInLastMinute counts dispatches inside the sliding window.
func (e *Endpoint) RequestsInLastMinute(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-time.Minute)
	n := 0
	for _, t := range e.requestTimes {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// CoolingDown reports whether the endpoint is excluded from selection.
func (e *Endpoint) CoolingDown(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownUntil.After(now)
}

// CooldownUntil returns the current cooldown expiry.
func (e *Endpoint) CooldownUntil() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownUntil
}

// SetCooldown sets the cooldown expiry (zero time clears it).
func (e *Endpoint) SetCooldown(until time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldownUntil = until
}

// SetActive flips the endpoint's availability.
func (e *Endpoint) SetActive(state bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isActive = state
}

// IsActive reports whether the endpoint may be selected at all.
func (e *Endpoint) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isActive
}

// Metrics returns the health snapshot for the exposed metrics map.
func (e *Endpoint) Metrics(now time.Time) EndpointMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.successCount + e.failureCount
	m := EndpointMetrics{
		Tier:     e.Tier,
		IsFailed: e.cooldownUntil.After(now) || !e.isActive,
	}
	if total > 0 {
		m.SuccessRate = float64(e.successCount) / float64(total)
		m.AvgLatencyMs = float64(e.totalLatency.Milliseconds()) / float64(total)
	}
	return m
}

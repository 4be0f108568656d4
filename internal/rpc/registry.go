// internal/rpc/registry.go
package rpc

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solpulse/memebot/internal/config"
	"github.com/solpulse/memebot/internal/metrics"
)

const (
	// maxCooldown caps exponential cooldown escalation.
	maxCooldown = 10 * time.Minute

	// rotationInterval forces load spreading even while healthy.
	rotationInterval = 3 * time.Minute

	probeTimeout = 5 * time.Second
)

// Registry tracks endpoint health, assigns cooldowns and selects the best
// endpoint for the scheduler. Endpoints are kept sorted descending by tier so
// selection is a single scan.
type Registry struct {
	endpoints []*Endpoint
	logger    *zap.Logger

	mu           sync.Mutex
	current      *Endpoint
	lastRotation time.Time

	probeInterval time.Duration
	cancel        context.CancelFunc
	nowFn         func() time.Time
	collector     *metrics.Collector
}

// NewRegistry builds a registry from configuration. The endpoint list is
// fixed for the process lifetime.
func NewRegistry(cfgs []config.EndpointConfig, probeInterval time.Duration, logger *zap.Logger) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoActiveEndpoints
	}

	endpoints := make([]*Endpoint, 0, len(cfgs))
	for _, c := range cfgs {
		endpoints = append(endpoints, NewEndpoint(c.URL, c.Tier))
	}
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Tier > endpoints[j].Tier
	})

	r := &Registry{
		endpoints:     endpoints,
		logger:        logger.Named("rpc-registry"),
		probeInterval: probeInterval,
		nowFn:         time.Now,
	}
	r.current = endpoints[0]
	r.lastRotation = r.nowFn()
	return r, nil
}

// SetMetrics attaches the prometheus collector. Optional; nil is fine.
func (r *Registry) SetMetrics(c *metrics.Collector) {
	r.collector = c
}

// Current returns the active endpoint.
func (r *Registry) Current() *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Endpoints returns the registered endpoints in selection order.
func (r *Registry) Endpoints() []*Endpoint {
	return r.endpoints
}

// Rotate selects the best available endpoint and makes it current.
func (r *Registry) Rotate() *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := r.findBestLocked()
	if best != r.current {
		r.logger.Info("endpoint rotated",
			zap.String("from", r.current.URL),
			zap.String("to", best.URL),
			zap.Int("tier", best.Tier))
		if r.collector != nil {
			r.collector.RecordRotation()
		}
	}
	r.current = best
	r.lastRotation = r.nowFn()
	return best
}

// findBestLocked picks the highest-tier endpoint whose cooldown has passed.
// If everything is cooling down, it force-selects the endpoint with the
// soonest expiry and clears its cooldown: degraded service beats none.
func (r *Registry) findBestLocked() *Endpoint {
	now := r.nowFn()
	for _, ep := range r.endpoints {
		if ep.IsActive() && !ep.CoolingDown(now) {
			return ep
		}
	}

	var soonest *Endpoint
	for _, ep := range r.endpoints {
		if !ep.IsActive() {
			continue
		}
		if soonest == nil || ep.CooldownUntil().Before(soonest.CooldownUntil()) {
			soonest = ep
		}
	}
	if soonest == nil {
		// Everything deactivated: reuse current rather than fail outright.
		soonest = r.current
	}
	r.logger.Warn("all endpoints cooling down, force-selecting soonest expiry",
		zap.String("url", soonest.URL),
		zap.Time("was_cooling_until", soonest.CooldownUntil()))
	soonest.SetCooldown(time.Time{})
	return soonest
}

// MarkFailed applies a cooldown to the endpoint. A second failure while
// still cooling doubles the remaining cooldown, capped at maxCooldown.
func (r *Registry) MarkFailed(ep *Endpoint, base time.Duration) {
	now := r.nowFn()

	var cooldown time.Duration
	if ep.CoolingDown(now) {
		remaining := ep.CooldownUntil().Sub(now)
		cooldown = 2 * remaining
	} else {
		cooldown = base
	}
	if cooldown > maxCooldown {
		cooldown = maxCooldown
	}
	ep.SetCooldown(now.Add(cooldown))
	r.logger.Warn("endpoint marked failed",
		zap.String("url", ep.URL),
		zap.Duration("cooldown", cooldown))
}

// HigherTierAvailable reports whether a strictly better endpoint than the
// current one is selectable. Used as a rotation trigger.
func (r *Registry) HigherTierAvailable() bool {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()

	now := r.nowFn()
	for _, ep := range r.endpoints {
		if ep.Tier <= current.Tier {
			return false // sorted descending, nothing better follows
		}
		if ep.IsActive() && !ep.CoolingDown(now) {
			return true
		}
	}
	return false
}

// TimeSinceRotation reports how long the current endpoint has been active.
func (r *Registry) TimeSinceRotation() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nowFn().Sub(r.lastRotation)
}

// RotationDue reports whether the load-spreading interval has elapsed.
func (r *Registry) RotationDue() bool {
	return r.TimeSinceRotation() >= rotationInterval
}

// CheckHealth issues a cheap liveness call against one endpoint.
func (r *Registry) CheckHealth(ctx context.Context, ep *Endpoint) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	_, err := ep.Client.GetVersion(probeCtx)
	latency := time.Since(start)
	ep.RecordResult(err == nil, latency)

	if err != nil {
		r.logger.Warn("endpoint health check failed",
			zap.String("url", ep.URL),
			zap.Error(err))
		return false
	}
	return true
}

// CheckAll probes every endpoint in parallel and returns health per URL.
// A healthy probe clears any lingering cooldown; an unhealthy one applies
// the network-class cooldown.
func (r *Registry) CheckAll(ctx context.Context) map[string]bool {
	results := make([]bool, len(r.endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range r.endpoints {
		g.Go(func() error {
			results[i] = r.CheckHealth(gctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	health := make(map[string]bool, len(r.endpoints))
	now := r.nowFn()
	for i, ep := range r.endpoints {
		health[ep.URL] = results[i]
		if results[i] {
			if ep.CoolingDown(now) {
				ep.SetCooldown(time.Time{})
				r.logger.Info("endpoint recovered, cooldown cleared",
					zap.String("url", ep.URL))
			}
		} else if !ep.CoolingDown(now) {
			r.MarkFailed(ep, cooldownNetwork)
		}
	}
	return health
}

// Start launches the background health probe.
func (r *Registry) Start(ctx context.Context) {
	probeCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.probeLoop(probeCtx)
}

func (r *Registry) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(r.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := r.CheckAll(ctx)
			if healthy, ok := health[r.Current().URL]; ok && !healthy {
				r.logger.Warn("active endpoint unhealthy, rotating",
					zap.String("url", r.Current().URL))
				r.Rotate()
			}
		}
	}
}

// Close stops the background probe.
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Metrics returns the exposed per-endpoint health map.
func (r *Registry) Metrics() map[string]EndpointMetrics {
	now := r.nowFn()
	out := make(map[string]EndpointMetrics, len(r.endpoints))
	for _, ep := range r.endpoints {
		out[ep.URL] = ep.Metrics(now)
	}
	return out
}

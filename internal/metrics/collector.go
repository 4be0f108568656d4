// internal/metrics/collector.go
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the bot's prometheus instruments. Construct one per process
// and pass it by reference; registration happens once.
type Collector struct{}

var registerOnce sync.Once

// NewCollector registers the instruments and returns the collector.
func NewCollector() *Collector {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			swapCounter,
			swapDuration,
			rpcLatency,
			endpointRotations,
			tokenCooldowns,
		)
	})
	return &Collector{}
}

// RecordSwap records one adapter swap attempt.
func (c *Collector) RecordSwap(adapter string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	swapCounter.WithLabelValues(status, adapter).Inc()
	swapDuration.WithLabelValues(adapter).Observe(duration.Seconds())
}

// RecordRPCLatency records one RPC call.
func (c *Collector) RecordRPCLatency(method, endpoint string, duration time.Duration) {
	rpcLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRotation counts an endpoint rotation.
func (c *Collector) RecordRotation() {
	endpointRotations.Inc()
}

// SetActiveCooldowns tracks how many tokens are currently suppressed.
func (c *Collector) SetActiveCooldowns(n int) {
	tokenCooldowns.Set(float64(n))
}

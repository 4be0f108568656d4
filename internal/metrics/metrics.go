// internal/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	swapCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memebot_swaps_total",
			Help: "Swap attempts by adapter and outcome",
		},
		[]string{"status", "adapter"},
	)

	swapDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memebot_swap_duration_seconds",
			Help:    "Swap execution duration by adapter",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	rpcLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memebot_rpc_latency_seconds",
			Help:    "RPC call latency by method and endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	endpointRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memebot_endpoint_rotations_total",
			Help: "Endpoint rotations performed by the registry",
		},
	)

	tokenCooldowns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memebot_token_cooldowns_active",
			Help: "Tokens currently blocked by the cooldown tracker",
		},
	)
)

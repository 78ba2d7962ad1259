// Package reliability provides Prometheus metrics for outbound calls.
package reliability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// callsTotal counts provider calls by terminal result.
	// Labels: provider, result (success, temporary, quota, permanent, circuit_open)
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "reliability",
			Name:      "calls_total",
			Help:      "Total provider call attempts by result",
		},
		[]string{"provider", "result"},
	)

	// callRetries counts retry attempts per provider.
	callRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "reliability",
			Name:      "retries_total",
			Help:      "Total retry attempts per provider",
		},
		[]string{"provider"},
	)

	// breakerState reports the current circuit state per provider
	// (0=closed, 1=open, 2=half_open).
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scoutd",
			Subsystem: "reliability",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half_open)",
		},
		[]string{"provider"},
	)
)

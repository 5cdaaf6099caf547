// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_routes_total",
			Help: "Messages routed per responder and routing source",
		},
		[]string{"responder", "source"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_tool_calls_total",
			Help: "Tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ExecutionSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportdesk_execution_steps",
			Help:    "Model steps used per delegated execution",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "supportdesk_model_latency_seconds",
			Help: "Model call latency in seconds",
		},
		[]string{"purpose"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportdesk_active_streams",
			Help: "Number of replies currently streaming",
		},
	)
)

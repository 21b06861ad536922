package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "backhaul_matching"

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "searches_total", Help: "Route searches by outcome"},
		[]string{"outcome"},
	)
	SearchLatency    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "search_latency_seconds", Help: "Route search latency seconds"})
	SearchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_candidates",
		Help:      "Candidates returned by the coarse proximity query",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
	})
	SearchMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_matches",
		Help:      "Routes left after the exact deviation check",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
	})

	RoutesPosted      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "routes_posted_total", Help: "Routes posted by drivers"})
	BookingRequests   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "booking_requests_total", Help: "Booking requests by outcome"}, []string{"outcome"})
	DriverConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "driver_ws_connections", Help: "Open driver websocket sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatitat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatitat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatitat_sessions_active",
			Help: "Currently active chat sessions",
		},
	)

	SessionsJoined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatitat_sessions_joined_total",
			Help: "Total sessions joined",
		},
		[]string{"kind"}, // "join" or "rejoin"
	)

	MessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatitat_messages_published_total",
			Help: "Total chat messages published",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatitat_auth_failures_total",
			Help: "Total credential verification failures",
		},
		[]string{"surface"}, // "socket" or "http"
	)

	HistoryPurges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatitat_history_purges_total",
			Help: "Total messages purged from history",
		},
	)

	// Infrastructure metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatitat_store_errors_total",
			Help: "Total store operation failures",
		},
		[]string{"op"},
	)

	BusDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatitat_bus_deliveries_total",
			Help: "Total fan-out deliveries forwarded to clients",
		},
	)
)

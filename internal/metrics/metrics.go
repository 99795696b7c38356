package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Real-time routing metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_connections_active",
			Help: "Currently registered websocket connections",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_ws_events_total",
			Help: "Inbound websocket events by type",
		},
		[]string{"type"},
	)

	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_messages_routed_total",
			Help: "Messages persisted and fanned out",
		},
		[]string{"sender"},
	)

	AutoReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_auto_replies_total",
			Help: "Automated keyword replies sent",
		},
	)

	BroadcastErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_broadcast_errors_total",
			Help: "Failed writes while fanning out an event",
		},
	)

	SessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_sessions_reaped_total",
			Help: "Idle anonymous sessions closed by the reaper",
		},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_sessions_created_total",
			Help: "Chat sessions created",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livechat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	SessionStoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livechat_session_store_latency_seconds",
			Help:    "Session store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)

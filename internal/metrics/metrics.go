package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Sync metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_polls_total",
			Help: "Total refresh fetches",
		},
		[]string{"kind", "result"}, // kind: "conversations" or "messages"; result: "changed", "unchanged", "error", "stale"
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_poll_duration_seconds",
			Help:    "Refresh fetch latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_messages_sent_total",
			Help: "Total send attempts",
		},
		[]string{"result"}, // "ok", "invalid", "error"
	)

	MarkReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_mark_read_total",
			Help: "Total remote mark-read calls",
		},
		[]string{"result"},
	)

	// Bridge metrics
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_websocket_clients",
			Help: "Connected event stream clients",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"path"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_events_published_total",
			Help: "Engine events published to Redis",
		},
		[]string{"result"},
	)
)

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatcheckout_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seatcheckout_active_sessions",
			Help: "Open seat selection sessions",
		},
	)

	SeatToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatcheckout_seat_toggles_total",
			Help: "Seat toggle attempts by outcome",
		},
		[]string{"outcome"},
	)

	Commits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatcheckout_commits_total",
			Help: "Booking commits by surface and result",
		},
		[]string{"surface", "result"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seatcheckout_backend_request_seconds",
			Help:    "Latency of calls to the booking backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	RateRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatcheckout_rate_refresh_total",
			Help: "Conversion rate refreshes by result",
		},
		[]string{"result"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seatcheckout_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seatcheckout_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last pass",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatcheckout_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatcheckout_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

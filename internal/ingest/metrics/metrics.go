package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks fetch pipeline invocations by outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_fetches_total",
			Help: "Total number of fetch invocations",
		},
		[]string{"outcome"},
	)

	// MessagesFetched tracks messages returned by the pipeline
	MessagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inboxd_messages_fetched_total",
			Help: "Total number of messages surfaced by the fetch pipeline",
		},
	)

	// MessagesDeduped tracks messages dropped by dedup rules
	MessagesDeduped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_messages_deduped_total",
			Help: "Total number of messages dropped during deduplication",
		},
		[]string{"rule"},
	)

	// APICallsTotal tracks outbound API calls by endpoint and status
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_api_calls_total",
			Help: "Total number of outbound API calls",
		},
		[]string{"endpoint", "status"},
	)

	// APILatency tracks outbound API call latency
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inboxd_api_latency_seconds",
			Help:    "Outbound API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// RetriesTotal tracks retried attempts by stage
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_retries_total",
			Help: "Total number of retried attempts",
		},
		[]string{"stage"},
	)

	// TokenRefreshes tracks credential refreshes by outcome
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_token_refreshes_total",
			Help: "Total number of credential refreshes",
		},
		[]string{"outcome"},
	)

	// ErrorsTotal tracks classified errors by category and severity
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_errors_total",
			Help: "Total number of classified process errors",
		},
		[]string{"category", "severity"},
	)

	// EscalationsTotal tracks escalation notifications sent
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inboxd_escalations_total",
			Help: "Total number of escalation notifications",
		},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inboxd_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

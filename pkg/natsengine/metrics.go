package natsengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirror pkg/metrics' promauto counters/histograms, scoped to this
// package instead of the CDC pipeline's own event/publish counters.
var (
	messagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natsengine_messages_consumed_total",
			Help: "Total number of messages drained from consumer queues, by table.",
		},
		[]string{"table"},
	)

	parseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natsengine_parse_errors_total",
			Help: "Total number of messages that failed to parse, by table and handling mode.",
		},
		[]string{"table", "mode"},
	)

	streamingPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "natsengine_streaming_pass_duration_seconds",
			Help:    "Duration of one streaming task pass over all consumers.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natsengine_reconnects_total",
			Help: "Total number of completed broker reconnects observed, by table.",
		},
		[]string{"table"},
	)
)

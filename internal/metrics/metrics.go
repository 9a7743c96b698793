package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voxwatch"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Call admission metrics
var (
	CallsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_submitted_total",
			Help:      "Total call submissions by outcome",
		},
		[]string{"outcome"},
	)

	QuotaDecrementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decrements_total",
			Help:      "Total free call credit decrement attempts by result",
		},
		[]string{"result"},
	)
)

// Queue metrics
var (
	QueueMessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_sent_total",
			Help:      "Total messages enqueued for processing",
		},
	)

	QueueMessagesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_received_total",
			Help:      "Total messages received from the queue",
		},
	)

	QueueMessagesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_deleted_total",
			Help:      "Total messages acknowledged after successful processing",
		},
	)
)

// Processing metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of call processing jobs by status",
		},
		[]string{"status"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Current number of call processing jobs in flight",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Call processing time distribution",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	TranscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total transcription attempts by status",
		},
		[]string{"status"},
	)

	TranscriptionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Transcription latency distribution",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

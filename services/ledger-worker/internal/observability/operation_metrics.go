package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_worker",
			Name:      "messages_received_total",
			Help:      "Kafka messages pulled by the worker",
		},
		[]string{"topic"},
	)

	OperationsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_worker",
			Name:      "posted_total",
			Help:      "Operations posted to the ledger by transaction type",
		},
		[]string{"topic", "type"},
	)

	OperationsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_worker",
			Name:      "duplicate_total",
			Help:      "Redelivered operations that were already posted",
		},
		[]string{"topic"},
	)

	OperationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_worker",
			Name:      "failed_total",
			Help:      "Failed operations by reason",
		},
		[]string{"topic", "reason"},
	)

	OperationsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_worker",
			Name:      "retried_total",
			Help:      "Attempts repeated because the ledger store was unavailable",
		},
		[]string{"topic"},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_worker",
			Name:      "dlq_total",
			Help:      "Operations sent to DLQ by reason",
		},
		[]string{"topic", "reason"},
	)

	ProcessLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger_worker",
			Name:      "process_duration_seconds",
			Help:      "End-to-end processing latency per message",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	InflightJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger_worker",
			Name:      "inflight_jobs",
			Help:      "Number of jobs currently being processed (semaphore depth)",
		},
	)
)

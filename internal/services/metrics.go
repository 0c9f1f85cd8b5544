// Prometheus collectors for the relay pipeline. Label cardinality is kept
// bounded: targets are a small configured set, statuses and outcomes are
// fixed enums.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// forwardsTotal counts successful deliveries by target channel.
	forwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_forwards_total",
			Help: "Total number of successfully delivered forwards.",
		},
		[]string{"target"},
	)

	// forwardErrorsTotal counts failed delivery attempts by target channel.
	forwardErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_forward_errors_total",
			Help: "Total number of failed delivery attempts.",
		},
		[]string{"target"},
	)

	// duplicatesTotal counts messages skipped by the deduplication check.
	duplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_duplicates_skipped_total",
			Help: "Total number of messages skipped as duplicates.",
		},
	)

	// joinAttemptsTotal counts ensure-membership outcomes by status.
	joinAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_join_attempts_total",
			Help: "Total number of channel membership attempts by outcome.",
		},
		[]string{"status"},
	)

	// retryRowsTotal counts ledger rows processed by the retry worker.
	retryRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retry_rows_total",
			Help: "Total number of pending-forward rows processed by outcome.",
		},
		[]string{"outcome"},
	)

	// queueDepth gauges the number of links waiting in the forwarding queue.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Current number of links waiting in the forwarding queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		forwardsTotal,
		forwardErrorsTotal,
		duplicatesTotal,
		joinAttemptsTotal,
		retryRowsTotal,
		queueDepth,
	)
}

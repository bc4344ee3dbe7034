package ucp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for client request metrics.
const (
	outcomeSuccess         = "success"
	outcomeUnreachable     = "unreachable"
	outcomeRejected        = "rejected"
	outcomeInvalidResponse = "invalid_response"
	outcomeError           = "error"
)

var (
	clientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucp_client_requests_total",
			Help: "Total number of UCP merchant requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	clientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ucp_client_request_duration_seconds",
			Help:    "Duration of UCP merchant requests by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

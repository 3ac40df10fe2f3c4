package inspire

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exposed on the debug server's /metrics endpoint.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspire_api_requests_total",
		Help: "Requests sent to the Inspire API, by action.",
	}, []string{"action"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspire_api_errors_total",
		Help: "Failed Inspire API requests, by error classification.",
	}, []string{"kind"})
)

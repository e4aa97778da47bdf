// Package metrics exposes Prometheus collectors behind small wrapper
// types consumed by the relay, feeder and transport layers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btcrelay7000",
		Subsystem: "relay",
		Name:      "operations_total",
		Help:      "Count of relay core operations.",
	}, []string{"operation", "status"})

	relayOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "btcrelay7000",
		Subsystem: "relay",
		Name:      "operation_duration_seconds",
		Help:      "Duration of relay core operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// Relay tracks metrics for header validation and proof verification.
type Relay struct{}

// NewRelay constructs a metrics collector for relay operations.
func NewRelay() *Relay {
	return &Relay{}
}

// Observe records a single relay operation outcome and duration.
func (Relay) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	relayOperationsTotal.WithLabelValues(operation, status).Inc()
	relayOperationDuration.WithLabelValues(operation, status).
		Observe(time.Since(started).Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feederSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btcrelay7000",
		Subsystem: "feeder",
		Name:      "sync_total",
		Help:      "Count of feeder sync iterations.",
	}, []string{"network", "status"})

	feederSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "btcrelay7000",
		Subsystem: "feeder",
		Name:      "sync_duration_seconds",
		Help:      "Duration of feeder sync iterations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "status"})

	feederSubmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btcrelay7000",
		Subsystem: "feeder",
		Name:      "submit_total",
		Help:      "Count of headers submitted to the relay.",
	}, []string{"network", "status"})

	feederBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "btcrelay7000",
		Subsystem: "feeder",
		Name:      "batch_size",
		Help:      "Number of headers fetched per sync iteration.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"network"})
)

// Feeder tracks metrics for the header feeder loop.
type Feeder struct {
	network string
}

// NewFeeder constructs a metrics collector for the feeder.
func NewFeeder(network string) *Feeder {
	if network == "" {
		network = "unknown"
	}
	return &Feeder{network: network}
}

// ObserveSync records one sync iteration outcome and duration.
func (m Feeder) ObserveSync(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	feederSyncTotal.WithLabelValues(m.network, status).Inc()
	feederSyncDuration.WithLabelValues(m.network, status).
		Observe(time.Since(started).Seconds())
}

// ObserveSubmit records one header submission outcome.
func (m Feeder) ObserveSubmit(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	feederSubmitTotal.WithLabelValues(m.network, status).Inc()
}

// ObserveBatch records the size of a fetched header batch.
func (m Feeder) ObserveBatch(size int) {
	feederBatchSize.WithLabelValues(m.network).Observe(float64(size))
}

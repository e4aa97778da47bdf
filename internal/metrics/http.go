package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btcrelay7000",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of REST API requests.",
	}, []string{"route", "method", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "btcrelay7000",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of REST API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
)

// HTTP tracks metrics for the REST API.
type HTTP struct{}

// NewHTTP constructs a metrics collector for REST requests.
func NewHTTP() *HTTP {
	return &HTTP{}
}

// Observe records one served request.
func (HTTP) Observe(route, method string, code int, started time.Time) {
	labels := []string{route, method, strconv.Itoa(code)}
	httpRequestsTotal.WithLabelValues(labels...).Inc()
	httpRequestDuration.WithLabelValues(labels...).
		Observe(time.Since(started).Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btcrelay7000",
		Subsystem: "rpc_client",
		Name:      "operations_total",
		Help:      "Count of Bitcoin node RPC operations.",
	}, []string{"operation", "network", "status"})

	rpcOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "btcrelay7000",
		Subsystem: "rpc_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Bitcoin node RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "network", "status"})
)

// RPCClient tracks metrics for RPC calls to the Bitcoin node.
type RPCClient struct {
	network string
}

// NewRPCClient constructs a metrics collector for node RPC calls.
func NewRPCClient(network string) *RPCClient {
	if network == "" {
		network = "unknown"
	}
	return &RPCClient{network: network}
}

// Observe records a single RPC call outcome and duration.
func (m RPCClient) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	rpcOperationsTotal.WithLabelValues(operation, m.network, status).Inc()
	rpcOperationDuration.WithLabelValues(operation, m.network, status).
		Observe(time.Since(started).Seconds())
}

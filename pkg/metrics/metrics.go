package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricOperationsTotal   = "davis_storage_operations_total"
	MetricOperationDuration = "davis_storage_operation_duration_seconds"
)

var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricOperationsTotal,
		Help: "Storage operations by component, operation and outcome.",
	},
	[]string{"component", "operation", "status"},
)

var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricOperationDuration,
		Help:    "Storage operation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"component", "operation"},
)

func init() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
}

// Observe records one finished operation.
func Observe(component, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(component, operation, status).Inc()
	OperationDuration.WithLabelValues(component, operation).Observe(time.Since(start).Seconds())
}

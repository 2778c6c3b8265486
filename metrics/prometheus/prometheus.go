// Package prometheus provides a Prometheus implementation of the gateway
// metrics collector. It is optional and only imported when Prometheus
// metrics are needed.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sandrolain/gatecache/metrics"
)

// Collector implements metrics.Collector on Prometheus.
type Collector struct {
	transactions        *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	storeOperations     *prometheus.CounterVec
	storeOpDuration     *prometheus.HistogramVec
	responseSize        *prometheus.CounterVec
	staleResponses      *prometheus.CounterVec
}

// CollectorConfig provides configuration options for the Prometheus
// collector.
type CollectorConfig struct {
	// Registry is the Prometheus registry to use. If nil, uses
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace for metrics (default: "gatecache")
	Namespace string

	// Subsystem for metrics (optional)
	Subsystem string

	// ConstLabels are labels added to all metrics
	ConstLabels prometheus.Labels
}

// NewCollector creates a collector on the default registry.
func NewCollector() *Collector {
	return NewCollectorWithConfig(CollectorConfig{})
}

// NewCollectorWithRegistry creates a collector on a custom registry.
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	return NewCollectorWithConfig(CollectorConfig{Registry: reg})
}

// NewCollectorWithConfig creates a collector with custom configuration.
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = "gatecache"
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "transactions_total",
				Help:        "Total number of transactions through the gateway",
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "cache_status", "status_code"},
		),
		transactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "transaction_duration_seconds",
				Help:        "Transaction duration",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "cache_status"},
		),
		storeOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operations_total",
				Help:        "Total number of metadata and entity store operations",
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "store", "result"},
		),
		storeOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operation_duration_seconds",
				Help:        "Store operation duration",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
				ConstLabels: config.ConstLabels,
			},
			[]string{"operation", "store"},
		),
		responseSize: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "response_size_bytes_total",
				Help:        "Total bytes delivered, by cache status",
				ConstLabels: config.ConstLabels,
			},
			[]string{"cache_status"},
		),
		staleResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "stale_responses_total",
				Help:        "Stale entries served because the origin failed",
				ConstLabels: config.ConstLabels,
			},
			[]string{"error_type"},
		),
	}
}

// RecordTransaction records one exchange through the gateway.
func (c *Collector) RecordTransaction(method, cacheStatus string, statusCode int, duration time.Duration) {
	c.transactions.WithLabelValues(method, cacheStatus, strconv.Itoa(statusCode)).Inc()
	c.transactionDuration.WithLabelValues(method, cacheStatus).Observe(duration.Seconds())
}

// RecordStoreOperation records one store operation.
func (c *Collector) RecordStoreOperation(op, store, result string, duration time.Duration) {
	c.storeOperations.WithLabelValues(op, store, result).Inc()
	c.storeOpDuration.WithLabelValues(op, store).Observe(duration.Seconds())
}

// RecordResponseSize records the body size of a delivered response.
func (c *Collector) RecordResponseSize(cacheStatus string, sizeBytes int64) {
	c.responseSize.WithLabelValues(cacheStatus).Add(float64(sizeBytes))
}

// RecordStaleResponse records a stale entry served on origin failure.
func (c *Collector) RecordStaleResponse(errorType string) {
	c.staleResponses.WithLabelValues(errorType).Inc()
}

var _ metrics.Collector = (*Collector)(nil)

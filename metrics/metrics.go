// Package metrics defines the interface the gateway uses to report cache
// activity. Implementations can feed any monitoring system without adding
// dependencies to the core package; see the prometheus subpackage for one.
package metrics

import "time"

// Collector receives measurements from the gateway.
type Collector interface {
	// RecordTransaction records one request/response exchange through the
	// gateway. cacheStatus is "hit", "miss", "revalidated", "pass" or
	// "error".
	RecordTransaction(method, cacheStatus string, statusCode int, duration time.Duration)

	// RecordStoreOperation records one metadata or entity store operation.
	// op is "lookup", "store", "read", "write" or "purge"; store is "meta"
	// or "entity"; result is "ok", "miss" or "error".
	RecordStoreOperation(op, store, result string, duration time.Duration)

	// RecordResponseSize records the body size of a delivered response.
	RecordResponseSize(cacheStatus string, sizeBytes int64)

	// RecordStaleResponse records a stale entry served because the origin
	// failed. errorType is "transport" or "server_error".
	RecordStaleResponse(errorType string)
}

// NoOpCollector implements Collector with no-op operations. It is the
// default when metrics are not enabled.
type NoOpCollector struct{}

// RecordTransaction does nothing.
func (NoOpCollector) RecordTransaction(method, cacheStatus string, statusCode int, duration time.Duration) {
}

// RecordStoreOperation does nothing.
func (NoOpCollector) RecordStoreOperation(op, store, result string, duration time.Duration) {}

// RecordResponseSize does nothing.
func (NoOpCollector) RecordResponseSize(cacheStatus string, sizeBytes int64) {}

// RecordStaleResponse does nothing.
func (NoOpCollector) RecordStaleResponse(errorType string) {}

// DefaultCollector is the collector used when none is configured.
var DefaultCollector Collector = NoOpCollector{}

var _ Collector = NoOpCollector{}

package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectorRecordsTransaction(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(reg)

	c.RecordTransaction("GET", "hit", 200, 5*time.Millisecond)
	c.RecordTransaction("GET", "miss", 200, 20*time.Millisecond)

	families := gather(t, reg)
	counter, ok := families["gatecache_transactions_total"]
	require.True(t, ok, "transactions counter not registered")
	assert.Len(t, counter.GetMetric(), 2)

	hist, ok := families["gatecache_transaction_duration_seconds"]
	require.True(t, ok, "duration histogram not registered")
	assert.NotEmpty(t, hist.GetMetric())
}

func TestCollectorRecordsStoreOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(reg)

	c.RecordStoreOperation("lookup", "meta", "ok", time.Millisecond)
	c.RecordResponseSize("hit", 1024)
	c.RecordStaleResponse("transport")

	families := gather(t, reg)
	for _, name := range []string{
		"gatecache_store_operations_total",
		"gatecache_response_size_bytes_total",
		"gatecache_stale_responses_total",
	} {
		_, ok := families[name]
		assert.True(t, ok, "%s not registered", name)
	}
}

func TestCollectorCustomNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithConfig(CollectorConfig{Registry: reg, Namespace: "edge"})

	c.RecordTransaction("GET", "pass", 502, time.Millisecond)

	families := gather(t, reg)
	_, ok := families["edge_transactions_total"]
	assert.True(t, ok)
}

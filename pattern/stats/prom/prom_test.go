package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAdapterCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "spaco", "patterns")

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(3)
	a.Evict(0)
	a.CacheClear()
	a.HighMemory()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.clears))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.highMemory))
}

func TestAdapterSampleGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "spaco", "patterns")

	a.Sample(0.42)
	a.Sample(0.87)
	a.Sample(0.63)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.checks))
	assert.Equal(t, 0.63, testutil.ToFloat64(a.usageRatio))
	assert.Equal(t, 0.87, testutil.ToFloat64(a.peakGauge))
}

func TestAdapterRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "spaco", "patterns")
	a.Hit()
	a.Sample(0.5)

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{
		"spaco_patterns_cache_hits_total",
		"spaco_patterns_cache_misses_total",
		"spaco_patterns_cache_evictions_total",
		"spaco_patterns_cache_clears_total",
		"spaco_patterns_high_memory_events_total",
		"spaco_patterns_memory_checks_total",
		"spaco_patterns_memory_usage_ratio",
		"spaco_patterns_memory_usage_peak_ratio",
	}, names)
}

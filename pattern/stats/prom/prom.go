// Package prom exports the pattern stats feed as Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spaco-sound/spaco/pattern/stats"
)

// Adapter implements stats.Recorder and exports Prometheus
// counters/gauges. All Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	evictions   prometheus.Counter
	clears      prometheus.Counter
	highMemory  prometheus.Counter
	checks      prometheus.Counter
	usageRatio  prometheus.Gauge
	peakGauge   prometheus.Gauge
	currentPeak float64
}

// New constructs a Prometheus adapter registered with reg
// (nil => prometheus.DefaultRegisterer). ns and sub are the Prometheus
// namespace and subsystem applied to every metric.
func New(reg prometheus.Registerer, ns, sub string) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "cache_hits_total",
			Help: "Pattern cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "cache_misses_total",
			Help: "Pattern cache misses",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "cache_evictions_total",
			Help: "Pattern cache entries evicted",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "cache_clears_total",
			Help: "Full cache clears triggered by critical memory pressure",
		}),
		highMemory: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "high_memory_events_total",
			Help: "High-memory relief events",
		}),
		checks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "memory_checks_total",
			Help: "Memory monitor samples taken",
		}),
		usageRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "memory_usage_ratio",
			Help: "Last sampled process memory usage ratio (0.0-1.0)",
		}),
		peakGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "memory_usage_peak_ratio",
			Help: "Peak sampled process memory usage ratio (0.0-1.0)",
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evictions, a.clears, a.highMemory,
		a.checks, a.usageRatio, a.peakGauge)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict adds n to the eviction counter.
func (a *Adapter) Evict(n int) {
	if n > 0 {
		a.evictions.Add(float64(n))
	}
}

// CacheClear increments the clear-event counter.
func (a *Adapter) CacheClear() { a.clears.Inc() }

// HighMemory increments the high-memory-event counter.
func (a *Adapter) HighMemory() { a.highMemory.Inc() }

// Sample updates the usage gauges.
func (a *Adapter) Sample(ratio float64) {
	a.checks.Inc()
	a.usageRatio.Set(ratio)
	if ratio > a.currentPeak {
		a.currentPeak = ratio
		a.peakGauge.Set(ratio)
	}
}

// Compile-time check: ensure Adapter implements stats.Recorder.
var _ stats.Recorder = (*Adapter)(nil)

// Package stats aggregates cache and memory-pressure counters for the
// pattern subsystem.
package stats

import (
	"math"
	"sync/atomic"
)

// Recorder is the full event feed produced by the cache and the memory
// monitor. All implementations must be safe for concurrent use.
type Recorder interface {
	Hit()
	Miss()
	Evict(n int)
	CacheClear()
	HighMemory()
	Sample(ratio float64)
}

// Snapshot is a point-in-time copy of the collected counters.
type Snapshot struct {
	Hits             uint64  `json:"hits"`
	Misses           uint64  `json:"misses"`
	Evictions        uint64  `json:"evictions"`
	CacheClears      uint64  `json:"cache_clears"`
	HighMemoryEvents uint64  `json:"high_memory_events"`
	TotalChecks      uint64  `json:"total_checks"`
	LastUsageRatio   float64 `json:"last_memory_usage"`
	PeakUsageRatio   float64 `json:"peak_memory_usage"`
}

// Collector is the default Recorder: lock-free atomic counters created
// once at manager initialization and mutated for the process lifetime.
type Collector struct {
	hits             atomic.Uint64
	misses           atomic.Uint64
	evictions        atomic.Uint64
	cacheClears      atomic.Uint64
	highMemoryEvents atomic.Uint64
	totalChecks      atomic.Uint64
	lastRatioBits    atomic.Uint64
	peakRatioBits    atomic.Uint64
}

// NewCollector returns a zeroed collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Hit records a cache hit.
func (c *Collector) Hit() { c.hits.Add(1) }

// Miss records a cache miss.
func (c *Collector) Miss() { c.misses.Add(1) }

// Evict records n evicted cache entries.
func (c *Collector) Evict(n int) {
	if n > 0 {
		c.evictions.Add(uint64(n))
	}
}

// CacheClear records a full cache clear caused by critical memory pressure.
func (c *Collector) CacheClear() { c.cacheClears.Add(1) }

// HighMemory records a high-memory relief event.
func (c *Collector) HighMemory() { c.highMemoryEvents.Add(1) }

// Sample records a memory usage ratio and maintains the high-water mark.
func (c *Collector) Sample(ratio float64) {
	c.totalChecks.Add(1)
	c.lastRatioBits.Store(math.Float64bits(ratio))
	for {
		old := c.peakRatioBits.Load()
		if ratio <= math.Float64frombits(old) {
			return
		}
		if c.peakRatioBits.CompareAndSwap(old, math.Float64bits(ratio)) {
			return
		}
	}
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Evictions:        c.evictions.Load(),
		CacheClears:      c.cacheClears.Load(),
		HighMemoryEvents: c.highMemoryEvents.Load(),
		TotalChecks:      c.totalChecks.Load(),
		LastUsageRatio:   math.Float64frombits(c.lastRatioBits.Load()),
		PeakUsageRatio:   math.Float64frombits(c.peakRatioBits.Load()),
	}
}

// Reset zeroes every counter. Operator action only; nothing in the
// manager calls this.
func (c *Collector) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.cacheClears.Store(0)
	c.highMemoryEvents.Store(0)
	c.totalChecks.Store(0)
	c.lastRatioBits.Store(0)
	c.peakRatioBits.Store(0)
}

// Multi fans events out to several recorders, e.g. the collector plus
// a Prometheus adapter.
type Multi []Recorder

func (m Multi) Hit() {
	for _, r := range m {
		r.Hit()
	}
}

func (m Multi) Miss() {
	for _, r := range m {
		r.Miss()
	}
}

func (m Multi) Evict(n int) {
	for _, r := range m {
		r.Evict(n)
	}
}

func (m Multi) CacheClear() {
	for _, r := range m {
		r.CacheClear()
	}
}

func (m Multi) HighMemory() {
	for _, r := range m {
		r.HighMemory()
	}
}

func (m Multi) Sample(ratio float64) {
	for _, r := range m {
		r.Sample(ratio)
	}
}

// Noop is a Recorder that discards every event.
type Noop struct{}

func (Noop) Hit()           {}
func (Noop) Miss()          {}
func (Noop) Evict(int)      {}
func (Noop) CacheClear()    {}
func (Noop) HighMemory()    {}
func (Noop) Sample(float64) {}

// Compile-time interface checks.
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Multi(nil)
	_ Recorder = Noop{}
)

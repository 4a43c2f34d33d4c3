// Package monitor runs the background memory-pressure watchdog for
// the pattern cache.
//
// The monitor is a safety net on top of the cache's own capacity
// eviction: on a fixed interval it samples the process memory usage
// ratio and, past configured thresholds, asks the cache for graduated
// relief. Sampling failures are logged and skipped; the monitor never
// stops the loop or surfaces errors to pattern callers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// ErrSampling wraps failures to read process or system memory usage.
// It is internal to the monitor: logged, never propagated.
var ErrSampling = errors.New("memory usage sampling failed")

// ErrAlreadyRunning is returned by Start when the loop is active.
var ErrAlreadyRunning = errors.New("memory monitor already running")

// UsageFunc reports the current process memory usage ratio (0.0-1.0).
type UsageFunc func() (float64, error)

// Relief is the cache surface the monitor drives.
type Relief interface {
	EvictFraction(fraction float64) int
	EvictAll() int
}

// Events receives pressure observations; stats.Recorder satisfies it.
type Events interface {
	Sample(ratio float64)
	HighMemory()
	CacheClear()
}

// Config holds the monitor thresholds. Values outside (0, 1] fall back
// to the defaults from DefaultConfig.
type Config struct {
	// Interval between samples.
	Interval time.Duration

	// HighThreshold triggers fractional relief when exceeded.
	HighThreshold float64

	// CriticalThreshold triggers a full cache clear when exceeded.
	CriticalThreshold float64

	// ReliefFraction is the LRU fraction evicted on a high-memory event.
	ReliefFraction float64

	// MinCheckGap is the minimum spacing between samples, guarding
	// against excessive checks when Check is also called directly.
	// Zero selects the default; a negative value disables the guard.
	MinCheckGap time.Duration

	// Usage overrides the process memory sampler. Defaults to
	// RSS / system MemTotal read from /proc.
	Usage UsageFunc

	Logger *zap.Logger
}

// DefaultConfig mirrors the thresholds the synthesis bridge has always
// shipped with: sample every minute, shed half the cache at 85% usage,
// clear it entirely at 95%.
func DefaultConfig() Config {
	return Config{
		Interval:          60 * time.Second,
		HighThreshold:     0.85,
		CriticalThreshold: 0.95,
		ReliefFraction:    0.5,
		MinCheckGap:       5 * time.Second,
	}
}

// Monitor periodically samples process memory usage and relieves the
// cache under pressure.
type Monitor struct {
	cfg    Config
	cache  Relief
	events Events
	usage  UsageFunc
	logger *zap.Logger

	mu        sync.Mutex
	lastCheck time.Time
	lastRatio float64
	stopCh    chan struct{} // recreated on each Start

	wg     sync.WaitGroup
	active atomic.Bool
}

// New creates a monitor driving cache relief. events may not be nil.
func New(cache Relief, events Events, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.HighThreshold <= 0 || cfg.HighThreshold > 1 {
		cfg.HighThreshold = def.HighThreshold
	}
	if cfg.CriticalThreshold <= 0 || cfg.CriticalThreshold > 1 {
		cfg.CriticalThreshold = def.CriticalThreshold
	}
	if cfg.ReliefFraction <= 0 || cfg.ReliefFraction > 1 {
		cfg.ReliefFraction = def.ReliefFraction
	}
	if cfg.MinCheckGap == 0 {
		cfg.MinCheckGap = def.MinCheckGap
	}
	usage := cfg.Usage
	if usage == nil {
		usage = ProcessUsage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		cfg:    cfg,
		cache:  cache,
		events: events,
		usage:  usage,
		logger: logger,
	}
}

// Start launches the sampling loop. It returns ErrAlreadyRunning if
// the loop is active. The loop exits when ctx is cancelled or Stop is
// called; a stopped monitor may be started again.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.active.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	// A fresh channel per run keeps the monitor restartable after Stop
	// closed the previous one.
	stopCh := make(chan struct{})
	m.mu.Lock()
	m.stopCh = stopCh
	m.mu.Unlock()

	m.logger.Info("memory monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Float64("high_threshold", m.cfg.HighThreshold),
		zap.Float64("critical_threshold", m.cfg.CriticalThreshold))

	m.wg.Add(1)
	go m.loop(ctx, stopCh)
	return nil
}

// Stop terminates the sampling loop and waits for it to exit. Safe to
// call more than once.
func (m *Monitor) Stop() {
	if !m.active.CompareAndSwap(true, false) {
		return
	}
	m.mu.Lock()
	stopCh := m.stopCh
	m.mu.Unlock()
	close(stopCh)
	m.wg.Wait()
	m.logger.Info("memory monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := m.Check(); err != nil {
				// A failed sample degrades to "cache not relieved
				// this tick"; capacity eviction remains the backstop.
				m.logger.Warn("memory check skipped", zap.Error(err))
			}
		}
	}
}

// Check performs one sample-and-relieve pass and returns the sampled
// usage ratio. Calls closer together than MinCheckGap return the last
// ratio without sampling again.
func (m *Monitor) Check() (float64, error) {
	m.mu.Lock()
	now := time.Now()
	if m.cfg.MinCheckGap > 0 && now.Sub(m.lastCheck) < m.cfg.MinCheckGap && !m.lastCheck.IsZero() {
		ratio := m.lastRatio
		m.mu.Unlock()
		return ratio, nil
	}
	m.lastCheck = now
	m.mu.Unlock()

	ratio, err := m.usage()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSampling, err)
	}

	m.mu.Lock()
	m.lastRatio = ratio
	m.mu.Unlock()

	m.events.Sample(ratio)

	switch {
	case ratio >= m.cfg.CriticalThreshold:
		evicted := m.cache.EvictAll()
		m.events.CacheClear()
		m.logger.Warn("critical memory usage, cache cleared",
			zap.Float64("ratio", ratio),
			zap.Int("evicted", evicted))
	case ratio >= m.cfg.HighThreshold:
		evicted := m.cache.EvictFraction(m.cfg.ReliefFraction)
		m.events.HighMemory()
		m.logger.Info("high memory usage, cache relieved",
			zap.Float64("ratio", ratio),
			zap.Float64("fraction", m.cfg.ReliefFraction),
			zap.Int("evicted", evicted))
	}

	return ratio, nil
}

// LastRatio returns the most recently sampled usage ratio.
func (m *Monitor) LastRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRatio
}

// ProcessUsage is the default UsageFunc: process resident set size
// divided by total system memory, read from /proc.
func ProcessUsage() (float64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}

	proc, err := fs.Self()
	if err != nil {
		return 0, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, err
	}

	meminfo, err := fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if meminfo.MemTotal == nil || *meminfo.MemTotal == 0 {
		return 0, errors.New("system memory total unavailable")
	}

	total := float64(*meminfo.MemTotal) * 1024 // MemTotal is in kB
	return float64(stat.ResidentMemory()) / total, nil
}

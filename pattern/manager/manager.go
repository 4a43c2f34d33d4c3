// Package manager composes the pattern store, adaptive cache, and
// memory monitor behind the single entry point the synthesis bridge
// uses to fetch and persist compiled patterns.
package manager

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spaco-sound/spaco/pattern"
	"github.com/spaco-sound/spaco/pattern/cache"
	"github.com/spaco-sound/spaco/pattern/compile"
	"github.com/spaco-sound/spaco/pattern/monitor"
	"github.com/spaco-sound/spaco/pattern/stats"
	"github.com/spaco-sound/spaco/pattern/store"
)

// DefaultCacheCapacity bounds the in-memory cache when Options leaves
// CacheCapacity unset.
const DefaultCacheCapacity = 100

// touchTimeout bounds the asynchronous last-used bookkeeping writes.
const touchTimeout = 10 * time.Second

// Options configures a Manager. The configuration is immutable once
// the manager is constructed.
type Options struct {
	// DatabaseURL names the backing database: a SQLite path/DSN or a
	// postgres:// URL. Ignored when DB is set.
	DatabaseURL string

	// DB supplies a pre-opened handle (tests, embedding). The caller
	// keeps ownership; Close will not close it.
	DB      *sql.DB
	Dialect store.Dialect

	// CacheCapacity is the maximum number of cached patterns.
	CacheCapacity int

	// Monitor holds the memory watchdog thresholds. The monitor is
	// started by New unless DisableMonitor is set.
	Monitor        monitor.Config
	DisableMonitor bool

	// ExtraRecorder receives a copy of every stats event, e.g. a
	// Prometheus adapter.
	ExtraRecorder stats.Recorder

	Logger *zap.Logger
}

// Manager is the facade over store + cache + monitor. All methods are
// safe for concurrent use.
type Manager struct {
	store     *store.Store
	cache     *cache.Cache
	monitor   *monitor.Monitor
	collector *stats.Collector
	compiler  *compile.Compiler
	logger    *zap.Logger

	// storeMu serializes every store access together with the cache
	// populate that follows it: a miss-then-fill must not interleave
	// with a write-through save, or the cache could hold a row the
	// store has already replaced.
	storeMu sync.Mutex

	ownsStore bool
	touches   sync.WaitGroup

	closeOnce sync.Once
}

// New constructs a manager, initializes the schema, and starts the
// memory monitor.
func New(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var st *store.Store
	ownsStore := false
	if opts.DB != nil {
		st = store.New(opts.DB, opts.Dialect, logger)
	} else {
		url := opts.DatabaseURL
		if url == "" {
			url = "spaco.db"
		}
		var err error
		st, err = store.Open(url, logger)
		if err != nil {
			return nil, err
		}
		ownsStore = true
	}

	collector := stats.NewCollector()
	var recorder stats.Recorder = collector
	if opts.ExtraRecorder != nil {
		recorder = stats.Multi{collector, opts.ExtraRecorder}
	}

	capacity := opts.CacheCapacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := cache.New(capacity, cache.WithMetrics(recorder), cache.WithLogger(logger))

	monCfg := opts.Monitor
	if monCfg.Logger == nil {
		monCfg.Logger = logger
	}
	mon := monitor.New(c, recorder, monCfg)

	m := &Manager{
		store:     st,
		cache:     c,
		monitor:   mon,
		collector: collector,
		compiler:  compile.New(logger),
		logger:    logger,
		ownsStore: ownsStore,
	}

	if err := st.Init(context.Background()); err != nil {
		if ownsStore {
			st.Close()
		}
		return nil, err
	}

	if !opts.DisableMonitor {
		if err := mon.Start(context.Background()); err != nil {
			if ownsStore {
				st.Close()
			}
			return nil, err
		}
	}

	logger.Info("pattern manager initialized",
		zap.Int("cache_capacity", capacity),
		zap.Bool("monitor", !opts.DisableMonitor))
	return m, nil
}

// Close stops the monitor, waits for in-flight bookkeeping writes, and
// closes the store if the manager owns it.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.monitor.Stop()
		m.touches.Wait()
		if m.ownsStore {
			err = m.store.Close()
		}
	})
	return err
}

// Get returns the compiled pattern for (name, patternType), or nil
// when no such pattern exists. Cache first; a store hit populates the
// cache and refreshes recency asynchronously. The returned pattern is
// shared with the cache and must be treated as read-only; Clone it
// before mutating.
func (m *Manager) Get(ctx context.Context, name, patternType string) (*pattern.Pattern, error) {
	key := pattern.Key{Name: name, Type: patternType}
	if p := m.cache.Get(key); p != nil {
		return p, nil
	}

	m.storeMu.Lock()
	p, err := m.store.GetByKey(ctx, name, patternType)
	if err == nil && p != nil {
		m.cache.Put(key, p)
	}
	m.storeMu.Unlock()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	m.touchAsync(p.ID)
	return p, nil
}

// Save writes the pattern through to the store and updates the cache
// before returning, so a subsequent Get observes the saved value
// without a store round-trip. Returns the effective pattern id: a
// fresh one on first save, the original on replacement.
func (m *Manager) Save(ctx context.Context, name, patternType, source, compiled string, metadata pattern.Metadata) (string, error) {
	return m.savePattern(ctx, &pattern.Pattern{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         patternType,
		SourceCode:   source,
		CompiledCode: compiled,
		Metadata:     metadata,
	})
}

// CompileAndSave runs the pattern compiler on source and saves the
// result, returning the stored pattern.
func (m *Manager) CompileAndSave(ctx context.Context, name, patternType, source string, metadata pattern.Metadata) (*pattern.Pattern, error) {
	p, err := m.compiler.Compile(name, patternType, source, metadata)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	id, err := m.savePattern(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

func (m *Manager) savePattern(ctx context.Context, p *pattern.Pattern) (string, error) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	// Upsert rewrites p with the stored row's pattern_id, created_at,
	// and rating, so the cached copy matches the durable record.
	id, err := m.store.Upsert(ctx, p)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	p.LastUsedAt = &now
	m.cache.Put(p.Key(), p)
	return id, nil
}

// GetBatch returns up to limit patterns of patternType ordered most
// recently used first (never-used last). One batched store query
// establishes the ordering; cached copies are preferred per entry, and
// recency metadata is refreshed in a single asynchronous batch write.
func (m *Manager) GetBatch(ctx context.Context, patternType string, limit int) ([]*pattern.Pattern, error) {
	m.storeMu.Lock()
	rows, err := m.store.GetBatchByType(ctx, patternType, limit)
	if err != nil {
		m.storeMu.Unlock()
		return nil, err
	}

	patterns := make([]*pattern.Pattern, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		key := row.Key()
		if cached := m.cache.Get(key); cached != nil {
			patterns = append(patterns, cached)
		} else {
			m.cache.Put(key, row)
			patterns = append(patterns, row)
		}
		ids = append(ids, row.ID)
	}
	m.storeMu.Unlock()

	if len(patterns) == 0 {
		return nil, nil
	}
	m.touchAsync(ids...)
	return patterns, nil
}

// UpdateRating records quality feedback for a pattern. Ratings are
// store-only and do not affect cached compiled content.
func (m *Manager) UpdateRating(ctx context.Context, patternID string, rating float64) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	return m.store.UpdateRating(ctx, patternID, rating)
}

// Delete removes a pattern from the store and drops any cached
// projection. Deleting an unknown id is a no-op.
func (m *Manager) Delete(ctx context.Context, patternID string) error {
	m.storeMu.Lock()
	_, err := m.store.Delete(ctx, patternID)
	m.storeMu.Unlock()
	if err != nil {
		return err
	}
	m.cache.DeleteByID(patternID)
	return nil
}

// PruneUnused deletes patterns unused for longer than olderThan and
// clears the cache so stale projections cannot survive their rows.
func (m *Manager) PruneUnused(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.storeMu.Lock()
	pruned, err := m.store.PruneUnused(ctx, olderThan)
	m.storeMu.Unlock()
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		m.cache.EvictAll()
	}
	return pruned, nil
}

// CountByType reports how many patterns each type holds in the store.
func (m *Manager) CountByType(ctx context.Context) (map[string]int, error) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	return m.store.CountByType(ctx)
}

// Stats returns a snapshot of the hit/miss/eviction/memory counters.
func (m *Manager) Stats() stats.Snapshot {
	return m.collector.Snapshot()
}

// CompilerStats returns the pattern compiler counters.
func (m *Manager) CompilerStats() compile.Stats {
	return m.compiler.Stats()
}

// CacheLen returns the current cache occupancy.
func (m *Manager) CacheLen() int {
	return m.cache.Len()
}

// CheckMemory forces one monitor pass outside the periodic schedule.
func (m *Manager) CheckMemory() (float64, error) {
	return m.monitor.Check()
}

// touchAsync schedules a batched last_used_at refresh so read paths do
// not pay for recency bookkeeping.
func (m *Manager) touchAsync(ids ...string) {
	if len(ids) == 0 {
		return
	}
	m.touches.Add(1)
	go func() {
		defer m.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		m.storeMu.Lock()
		err := m.store.TouchLastUsedBatch(ctx, ids)
		m.storeMu.Unlock()
		if err != nil {
			m.logger.Warn("failed to refresh pattern recency",
				zap.Int("patterns", len(ids)), zap.Error(err))
		}
	}()
}

// WaitTouches blocks until scheduled recency writes finish. Tests use
// it to observe deterministic last_used_at state.
func (m *Manager) WaitTouches() {
	m.touches.Wait()
}

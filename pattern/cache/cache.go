// Package cache implements the bounded in-memory lookaside cache for
// compiled patterns.
//
// The cache never owns the authoritative copy of a pattern; eviction
// removes the in-memory projection only, the durable record stays
// intact in the store.
package cache

import (
	"container/list"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spaco-sound/spaco/pattern"
	"github.com/spaco-sound/spaco/pattern/stats"
)

// Metrics receives cache events. stats.Recorder satisfies it.
type Metrics interface {
	Hit()
	Miss()
	Evict(n int)
}

// entry is the in-memory projection of a pattern. The LRU list element
// is intrusive: front = most recently used, back = eviction candidate.
// Entries with identical last-access times keep list order, so the one
// inserted earlier is evicted first.
type entry struct {
	key        pattern.Key
	pat        *pattern.Pattern
	size       int64
	lastAccess time.Time
	elem       *list.Element
}

// Cache is a capacity-bounded LRU mapping from pattern key to compiled
// artifact. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[pattern.Key]*entry
	lru      *list.List
	capacity int
	metrics  Metrics
	logger   *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics sets the event sink. Defaults to stats.Noop.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache holding at most capacity entries. A capacity of
// zero or less disables bounding.
func New(capacity int, opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[pattern.Key]*entry),
		lru:      list.New(),
		capacity: capacity,
		metrics:  stats.Noop{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached pattern for key, promoting it to most
// recently used, or nil on a miss.
func (c *Cache) Get(key pattern.Key) *pattern.Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.Miss()
		return nil
	}

	e.lastAccess = time.Now()
	c.lru.MoveToFront(e.elem)
	c.metrics.Hit()
	return e.pat
}

// Put inserts or replaces the entry for key. If the insertion pushes
// occupancy over capacity, least-recently-used entries are evicted
// until the cache fits again.
func (c *Cache) Put(key pattern.Key, p *pattern.Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok {
		e.pat = p
		e.size = p.ApproxSize()
		e.lastAccess = now
		c.lru.MoveToFront(e.elem)
		return
	}

	e := &entry{key: key, pat: p, size: p.ApproxSize(), lastAccess: now}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e

	if c.capacity > 0 {
		evicted := 0
		for len(c.entries) > c.capacity {
			c.removeOldest()
			evicted++
		}
		if evicted > 0 {
			c.metrics.Evict(evicted)
			c.logger.Debug("cache capacity eviction",
				zap.Int("evicted", evicted),
				zap.Int("capacity", c.capacity))
		}
	}
}

// Delete removes the entry for key, reporting whether it was present.
func (c *Cache) Delete(key pattern.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(e)
	return true
}

// DeleteByID removes the entry holding the pattern with id, reporting
// whether one was present. Used when a pattern is deleted from the
// store by id.
func (c *Cache) DeleteByID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.pat.ID == id {
			c.remove(e)
			return true
		}
	}
	return false
}

// EvictAll clears every entry and returns the number removed.
func (c *Cache) EvictAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	if n == 0 {
		return 0
	}
	c.entries = make(map[pattern.Key]*entry)
	c.lru.Init()
	c.metrics.Evict(n)
	c.logger.Debug("cache cleared", zap.Int("evicted", n))
	return n
}

// EvictFraction evicts the least-recently-used fraction of entries
// (0 < fraction <= 1, rounded up) and returns the number removed.
func (c *Cache) EvictFraction(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction >= 1 {
		return c.EvictAll()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := int(math.Ceil(fraction * float64(len(c.entries))))
	evicted := 0
	for evicted < target && c.lru.Len() > 0 {
		c.removeOldest()
		evicted++
	}
	if evicted > 0 {
		c.metrics.Evict(evicted)
		c.logger.Debug("cache fraction eviction",
			zap.Float64("fraction", fraction),
			zap.Int("evicted", evicted))
	}
	return evicted
}

// Len returns the current occupancy.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the approximate memory weight of all entries in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, e := range c.entries {
		total += e.size
	}
	return total
}

// Keys returns the cached keys in most-recently-used-first order.
func (c *Cache) Keys() []pattern.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]pattern.Key, 0, len(c.entries))
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry).key)
	}
	return keys
}

// removeOldest drops the entry at the LRU end. Caller holds the lock.
func (c *Cache) removeOldest() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	c.remove(oldest.Value.(*entry))
}

// remove unlinks e from both the map and the list. Caller holds the lock.
func (c *Cache) remove(e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
}

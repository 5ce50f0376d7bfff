package cache

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry is one cached value. A zero expiresAt never expires.
type lruEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *lruEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// LRUCache is a size-bounded cache evicting the least recently used entry,
// with optional per-entry TTL and a background sweeper.
type LRUCache[V any] struct {
	config Config

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front is most recently used
	stats Stats

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

var _ Cache[SnapshotEntry] = (*LRUCache[SnapshotEntry])(nil)

// NewLRUCache creates a cache; a non-positive MaxSize falls back to the default
func NewLRUCache[V any](config Config) *LRUCache[V] {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	c := &LRUCache[V]{
		config:  config,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   Stats{MaxSize: config.MaxSize, LastCleanup: time.Now()},
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if config.CleanupPeriod > 0 {
		go c.sweep()
	} else {
		close(c.stopped)
	}
	return c
}

func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok && el.Value.(*lruEntry[V]).expired(time.Now()) {
		c.removeLocked(el)
		ok = false
	}
	if !ok {
		c.count(&c.stats.Misses)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(el)
	c.count(&c.stats.Hits)
	return el.Value.(*lruEntry[V]).value, true
}

// Set stores value with the configured default TTL
func (c *LRUCache[V]) Set(key string, value V) {
	c.setWithTTL(key, value, c.config.DefaultTTL)
}

// ttl 0 keeps the value until evicted or deleted
func (c *LRUCache[V]) setWithTTL(key string, value V, ttl time.Duration) {
	now := time.Now()
	entry := &lruEntry[V]{key: key, value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(entry)
	for c.order.Len() > c.config.MaxSize {
		c.removeLocked(c.order.Back())
		c.count(&c.stats.Evictions)
	}
}

func (c *LRUCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// cleanup drops expired entries
func (c *LRUCache[V]) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*lruEntry[V])
		if entry.expired(now) {
			c.removeLocked(el)
		}
		el = prev
	}
	c.stats.LastCleanup = now
}

func (c *LRUCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.items)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops the sweeper and empties the cache. It is safe to call twice.
func (c *LRUCache[V]) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.stopped

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// caller holds mu
func (c *LRUCache[V]) removeLocked(el *list.Element) {
	delete(c.items, el.Value.(*lruEntry[V]).key)
	c.order.Remove(el)
}

// caller holds mu
func (c *LRUCache[V]) count(counter *int64) {
	if c.config.EnableStats {
		*counter++
	}
}

func (c *LRUCache[V]) sweep() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

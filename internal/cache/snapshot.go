// Package cache provides TTL-bounded LRU caching, used to hold the last
// authoritative snapshot pushed for each watched resource.
package cache

import (
	"time"
)

// SnapshotEntry is an encoded envelope plus the time it was published
type SnapshotEntry struct {
	Frame       []byte
	PublishedAt time.Time
}

// SnapshotCache provides type-safe access to cached snapshot frames keyed by
// resource id
type SnapshotCache struct {
	cache Cache[SnapshotEntry]
}

// NewSnapshotCache wraps an existing cache
func NewSnapshotCache(cache Cache[SnapshotEntry]) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

// NewSnapshotCacheWithConfig creates a snapshot cache over a fresh LRU
func NewSnapshotCacheWithConfig(config Config) *SnapshotCache {
	return NewSnapshotCache(NewLRUCache[SnapshotEntry](config))
}

// Get returns the cached frame for a resource
func (s *SnapshotCache) Get(resourceID string) ([]byte, bool) {
	entry, ok := s.cache.Get(resourceID)
	if !ok {
		return nil, false
	}
	return entry.Frame, true
}

// Put replaces the cached frame for a resource
func (s *SnapshotCache) Put(resourceID string, frame []byte) {
	s.cache.Set(resourceID, SnapshotEntry{Frame: frame, PublishedAt: time.Now()})
}

// Release drops the cached frame for a resource
func (s *SnapshotCache) Release(resourceID string) {
	s.cache.Delete(resourceID)
}

// Stats exposes hit/miss counters of the underlying cache
func (s *SnapshotCache) Stats() Stats {
	return s.cache.Stats()
}

// Close stops background cleanup
func (s *SnapshotCache) Close() error {
	return s.cache.Close()
}

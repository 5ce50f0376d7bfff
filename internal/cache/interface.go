package cache

import (
	"time"
)

// Cache defines the interface for caching operations
type Cache[V any] interface {
	// Get retrieves an item from cache
	Get(key string) (V, bool)

	// Set stores an item in cache
	Set(key string, value V)

	// Delete removes an item from cache
	Delete(key string)

	// Size returns the current cache size
	Size() int

	// Stats returns cache statistics
	Stats() Stats

	// Close properly shuts down the cache
	Close() error
}

// Stats represents cache performance metrics
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	Size        int       `json:"size"`
	MaxSize     int       `json:"max_size"`
	HitRate     float64   `json:"hit_rate"`
	LastCleanup time.Time `json:"last_cleanup"`
}

// Config defines configuration options for cache implementations
type Config struct {
	MaxSize       int           `json:"max_size"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	CleanupPeriod time.Duration `json:"cleanup_period"`
	EnableStats   bool          `json:"enable_stats"`
}

// DefaultConfig sizes the cache for a few hundred watched resources whose
// snapshots go stale after a few minutes without a fresh push
func DefaultConfig() Config {
	return Config{
		MaxSize:       512,
		DefaultTTL:    5 * time.Minute,
		CleanupPeriod: time.Minute,
		EnableStats:   true,
	}
}

package cache

import (
	"errors"
	"strings"
	"time"
)

// Common errors for cache operations
var (
	// ErrCapacity is returned for capacities that cannot hold every query alias
	ErrCapacity = errors.New("url capacity must be at least the query capacity and both positive")

	// ErrSnapshotCorrupted is returned when a snapshot cannot be decoded
	ErrSnapshotCorrupted = errors.New("cache snapshot corrupted")
)

// Stats holds cache performance metrics
type Stats struct {
	// Configuration
	URLCapacity   int
	QueryCapacity int

	// Current state
	Tracks  int // Tracks keyed by URL
	Aliases int // Query to URL aliases

	// Performance metrics
	Hits        int64
	Misses      int64
	Expirations int64   // Entries dropped because their stream URL expired
	Evictions   int64   // Entries dropped to make room
	HitRate     float64 // hits / (hits + misses)

	LastAccess time.Time
}

// KeyFilter reports whether a query may be cached as an alias of its URL.
type KeyFilter func(query string) bool

// URLKeys only aliases queries that are already links. Search text is never
// cached because result ranking changes over time.
func URLKeys(query string) bool {
	return strings.HasPrefix(query, "https://") || strings.HasPrefix(query, "http://")
}

// Config holds configuration for a TrackCache
type Config struct {
	URLCapacity   int
	QueryCapacity int

	// KeyFilter decides which queries are aliased. Defaults to URLKeys.
	KeyFilter KeyFilter

	// Snapshot persistence, used by Manager
	SnapshotPath     string
	CompressionLevel int           // Zstd compression level (1-22, default 3)
	PruneInterval    time.Duration // How often to drop expired entries and save
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		URLCapacity:      256,
		QueryCapacity:    128,
		KeyFilter:        URLKeys,
		CompressionLevel: 3,
		PruneInterval:    30 * time.Minute,
	}
}

func (c Config) validate() error {
	if c.URLCapacity < 1 || c.QueryCapacity < 1 || c.URLCapacity < c.QueryCapacity {
		return ErrCapacity
	}
	return nil
}

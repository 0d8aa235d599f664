package cache

import (
	"sync"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// TrackCache memoizes resolved tracks. Tracks are keyed by canonical URL and
// link-shaped queries are aliased to that URL. Both maps evict least recently
// used entries once full.
type TrackCache struct {
	urls    *simplelru.LRU[string, track.Track]
	queries *simplelru.LRU[string, string]

	filter KeyFilter
	now    func() time.Time

	// Synchronization
	mu sync.Mutex

	// Metrics
	stats Stats
}

// Option configures a TrackCache.
type Option func(*TrackCache)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *TrackCache) {
		c.now = now
	}
}

// New creates a track cache with the capacities from cfg.
func New(cfg Config, opts ...Option) (*TrackCache, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	urls, err := simplelru.NewLRU[string, track.Track](cfg.URLCapacity, nil)
	if err != nil {
		return nil, err
	}
	queries, err := simplelru.NewLRU[string, string](cfg.QueryCapacity, nil)
	if err != nil {
		return nil, err
	}

	c := &TrackCache{
		urls:    urls,
		queries: queries,
		filter:  cfg.KeyFilter,
		now:     time.Now,
		stats: Stats{
			URLCapacity:   cfg.URLCapacity,
			QueryCapacity: cfg.QueryCapacity,
		},
	}
	if c.filter == nil {
		c.filter = URLKeys
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup returns the cached track for query. Expired tracks are removed and
// reported as absent.
func (c *TrackCache) Lookup(query string) (track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.stats.LastAccess = now

	url := query
	aliased := false
	if u, ok := c.queries.Get(query); ok {
		url = u
		aliased = true
	}

	t, ok := c.urls.Get(url)
	if !ok {
		if aliased {
			// The track was evicted before its alias.
			c.queries.Remove(query)
		}
		c.stats.Misses++
		return track.Track{}, false
	}

	if t.Expired(now) {
		c.urls.Remove(url)
		if aliased {
			c.queries.Remove(query)
		}
		c.stats.Expirations++
		c.stats.Misses++
		return track.Track{}, false
	}

	c.stats.Hits++
	return t, true
}

// Store caches t under its URL and, when query is link shaped, aliases query
// to it.
func (c *TrackCache) Store(query string, t track.Track) {
	if t.URL == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.urls.Add(t.URL, t) {
		c.stats.Evictions++
	}
	if query != t.URL && c.filter(query) {
		if c.queries.Add(query, t.URL) {
			c.stats.Evictions++
		}
	}
}

// Delete removes the track stored under url.
func (c *TrackCache) Delete(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls.Remove(url)
}

// Clear removes every entry.
func (c *TrackCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls.Purge()
	c.queries.Purge()
}

// Len returns the number of cached tracks.
func (c *TrackCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urls.Len()
}

// Prune drops expired tracks and aliases pointing at missing tracks. It
// returns the number of tracks removed.
func (c *TrackCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, url := range c.urls.Keys() {
		if t, ok := c.urls.Peek(url); ok && t.Expired(now) {
			c.urls.Remove(url)
			removed++
		}
	}
	for _, q := range c.queries.Keys() {
		if url, ok := c.queries.Peek(q); ok && !c.urls.Contains(url) {
			c.queries.Remove(q)
		}
	}

	c.stats.Expirations += int64(removed)
	return removed
}

// Stats returns cache statistics.
func (c *TrackCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Tracks = c.urls.Len()
	stats.Aliases = c.queries.Len()

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// entries returns the live tracks and aliases, oldest first, for snapshots.
func (c *TrackCache) entries() ([]track.Track, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	tracks := make([]track.Track, 0, c.urls.Len())
	for _, url := range c.urls.Keys() {
		if t, ok := c.urls.Peek(url); ok && !t.Expired(now) {
			tracks = append(tracks, t)
		}
	}

	aliases := make(map[string]string, c.queries.Len())
	for _, q := range c.queries.Keys() {
		if url, ok := c.queries.Peek(q); ok {
			aliases[q] = url
		}
	}
	return tracks, aliases
}

// restore inserts tracks oldest first so recency survives a round trip.
func (c *TrackCache) restore(tracks []track.Track, aliases map[string]string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, t := range tracks {
		if t.URL == "" || t.Expired(now) {
			continue
		}
		c.urls.Add(t.URL, t)
		n++
	}
	for q, url := range aliases {
		if c.urls.Contains(url) && c.filter(q) {
			c.queries.Add(q, url)
		}
	}
	return n
}

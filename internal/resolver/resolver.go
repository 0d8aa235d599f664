package resolver

import (
	"context"

	"github.com/KrystianJachna/DiscordMusicBot/internal/cache"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
)

// Resolver resolves a query or link into a playable track. Failures are
// reported as *track.ResolutionError values.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.Track, error)
}

// Expander lists the entries of a playlist detected during resolution.
type Expander interface {
	Expand(ctx context.Context, h track.PlaylistHandle) (track.Playlist, error)
}

// Func adapts a plain function to the Resolver interface.
type Func func(ctx context.Context, query string) (track.Track, error)

// Resolve calls f(ctx, query).
func (f Func) Resolve(ctx context.Context, query string) (track.Track, error) {
	return f(ctx, query)
}

// ExpandFunc adapts a plain function to the Expander interface.
type ExpandFunc func(ctx context.Context, h track.PlaylistHandle) (track.Playlist, error)

// Expand calls f(ctx, h).
func (f ExpandFunc) Expand(ctx context.Context, h track.PlaylistHandle) (track.Playlist, error) {
	return f(ctx, h)
}

// Cached consults a track cache before delegating to Next and stores every
// successful result. Video links are looked up by their canonical URL.
type Cached struct {
	Next  Resolver
	Cache *cache.TrackCache
}

// NewCached wraps next with c.
func NewCached(next Resolver, c *cache.TrackCache) *Cached {
	return &Cached{Next: next, Cache: c}
}

// Resolve implements Resolver.
func (r *Cached) Resolve(ctx context.Context, query string) (track.Track, error) {
	key := CanonicalURL(query)
	if t, ok := r.Cache.Lookup(key); ok {
		log.Debug("Track cache hit", "query", query, "title", t.Title)
		return t, nil
	}

	t, err := r.Next.Resolve(ctx, query)
	if err != nil {
		return track.Track{}, err
	}
	r.Cache.Store(key, t)
	return t, nil
}

// Expand forwards to Next when it can expand playlists.
func (r *Cached) Expand(ctx context.Context, h track.PlaylistHandle) (track.Playlist, error) {
	if e, ok := r.Next.(Expander); ok {
		return e.Expand(ctx, h)
	}
	return track.Playlist{}, track.NotFound(h.URL, nil)
}

package resolver

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/KrystianJachna/DiscordMusicBot/internal/cache"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
)

func TestCached_Resolve(t *testing.T) {
	c, err := cache.New(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	var calls atomic.Int32
	next := Func(func(ctx context.Context, query string) (track.Track, error) {
		calls.Add(1)
		if query == "missing" {
			return track.Track{}, track.NotFound(query, nil)
		}
		return track.Track{Title: "Song", URL: "https://www.youtube.com/watch?v=abc"}, nil
	})

	r := NewCached(next, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr, err := r.Resolve(ctx, "https://youtu.be/abc")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if tr.Title != "Song" {
			t.Errorf("Unexpected track %+v", tr)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 backend call, got %d", got)
	}

	// The canonical URL hits as well.
	if _, err := r.Resolve(ctx, "https://www.youtube.com/watch?v=abc"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Canonical URL should hit the cache, got %d calls", got)
	}

	if _, err := r.Resolve(ctx, "missing"); track.KindOf(err) != track.KindNotFound {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := r.Resolve(ctx, "missing"); err == nil {
		t.Error("Failures must not be cached")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 backend calls, got %d", got)
	}
}

func TestCached_Expand(t *testing.T) {
	c, _ := cache.New(cache.DefaultConfig())

	plain := NewCached(Func(func(context.Context, string) (track.Track, error) {
		return track.Track{}, nil
	}), c)
	if _, err := plain.Expand(context.Background(), track.PlaylistHandle{URL: "u"}); err == nil {
		t.Error("Expand without an expander should fail")
	}

	type both struct {
		Func
		ExpandFunc
	}
	inner := both{
		Func: func(context.Context, string) (track.Track, error) { return track.Track{}, nil },
		ExpandFunc: func(_ context.Context, h track.PlaylistHandle) (track.Playlist, error) {
			return track.Playlist{Title: "P", URL: h.URL}, nil
		},
	}
	p, err := NewCached(inner, c).Expand(context.Background(), track.PlaylistHandle{URL: "u"})
	if err != nil || p.Title != "P" {
		t.Errorf("Expand = %+v, %v", p, err)
	}
}

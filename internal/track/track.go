// Package track contains the values that flow between the resolver, the song
// queue and the player. It is shared by those packages to break import cycles.
package track

import (
	"time"
)

// Track is a resolved, playable song. It is an immutable value that moves
// between the cache, the queue's ready buffer and the player.
type Track struct {
	// Title is the human readable name of the song
	Title string

	// URL is the canonical page URL used as the cache key
	URL string

	// Duration is the song length
	Duration time.Duration

	// Thumbnail is an optional artwork URL
	Thumbnail string

	// StreamURL is the playable audio source handed to the sink
	StreamURL string

	// ExpiresAt is the moment StreamURL stops being valid. Zero means never.
	ExpiresAt time.Time
}

// Expired reports whether the stream URL is no longer usable at now.
func (t Track) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Reporter receives the outcome of a settled request.
type Reporter interface {
	Report(Outcome)
}

// ReporterFunc adapts a plain function to the Reporter interface.
type ReporterFunc func(Outcome)

// Report calls f(o).
func (f ReporterFunc) Report(o Outcome) { f(o) }

// Request is a user submission awaiting background resolution.
type Request struct {
	// Query is the search text or media URL
	Query string

	// Title is shown in queue listings before resolution, when known
	Title string

	// Reporter is notified once the request settles. Optional.
	Reporter Reporter

	// Silent suppresses all reporting for this request
	Silent bool
}

// DisplayTitle returns the title to show for a request that is not resolved yet.
func (r Request) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Query
}

// Report delivers o to the request's reporter unless the request is silent.
func (r Request) Report(o Outcome) {
	if r.Silent || r.Reporter == nil {
		return
	}
	o.Request = r
	r.Reporter.Report(o)
}

// Outcome describes how a request settled.
type Outcome struct {
	Request Request

	// Track is set when resolution succeeded
	Track *Track

	// Playlist is set when the request expanded into a playlist
	Playlist *Playlist

	// Err is set when resolution failed
	Err error

	// QueueLength is the number of queued songs when the outcome settled
	QueueLength int
}

// PlaylistHandle identifies a playlist that still has to be expanded.
type PlaylistHandle struct {
	URL string
	ID  string

	// Index is the zero based entry playback should start from
	Index int
}

// Entry is a single unresolved item of a playlist.
type Entry struct {
	URL      string
	Title    string
	Duration time.Duration
}

// Playlist is an expanded playlist.
type Playlist struct {
	Title   string
	URL     string
	Entries []Entry
}

// Duration returns the summed length of all entries with a known duration.
func (p Playlist) Duration() time.Duration {
	var d time.Duration
	for _, e := range p.Entries {
		d += e.Duration
	}
	return d
}

// Requests turns the playlist entries into silent requests that report
// nothing on their own.
func (p Playlist) Requests() []Request {
	reqs := make([]Request, 0, len(p.Entries))
	for _, e := range p.Entries {
		reqs = append(reqs, Request{Query: e.URL, Title: e.Title, Silent: true})
	}
	return reqs
}

// Rotate returns entries reordered so that entries[index] comes first. An
// out of range index leaves the order unchanged.
func Rotate[T any](entries []T, index int) []T {
	if index <= 0 || index >= len(entries) {
		return entries
	}
	out := make([]T, 0, len(entries))
	out = append(out, entries[index:]...)
	return append(out, entries[:index]...)
}

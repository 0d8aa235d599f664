package track

import (
	"errors"
	"fmt"
)

// Kind identifies the reason a query could not be resolved.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindLiveUnsupported  Kind = "LIVE_UNSUPPORTED"
	KindRestricted       Kind = "RESTRICTED"
	KindPlaylistDetected Kind = "PLAYLIST_DETECTED"
	KindGeneric          Kind = "GENERIC"
)

// ResolutionError is returned by resolvers for queries that did not yield a
// playable track.
type ResolutionError struct {
	Kind    Kind
	Query   string
	Message string

	// Playlist is set for KindPlaylistDetected
	Playlist *PlaylistHandle

	Cause error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %q: %s: %v", e.Kind, e.Query, msg, e.Cause)
	}
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Query, msg)
}

// Unwrap returns the underlying error
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// NotFound reports that nothing matched query.
func NotFound(query string, cause error) *ResolutionError {
	return &ResolutionError{Kind: KindNotFound, Query: query, Message: "no results", Cause: cause}
}

// LiveUnsupported reports that query points at a live stream.
func LiveUnsupported(query string) *ResolutionError {
	return &ResolutionError{Kind: KindLiveUnsupported, Query: query, Message: "live streams are not supported"}
}

// Restricted reports that query needs a signed in, age verified account.
func Restricted(query string, cause error) *ResolutionError {
	return &ResolutionError{Kind: KindRestricted, Query: query, Message: "content is age restricted", Cause: cause}
}

// PlaylistDetected reports that query is a playlist that must be expanded.
func PlaylistDetected(query string, h PlaylistHandle) *ResolutionError {
	return &ResolutionError{Kind: KindPlaylistDetected, Query: query, Message: "playlist detected", Playlist: &h}
}

// Generic wraps an unexpected failure.
func Generic(query string, cause error) *ResolutionError {
	return &ResolutionError{Kind: KindGeneric, Query: query, Message: "resolution failed", Cause: cause}
}

// KindOf returns the resolution kind of err. Errors that are not resolution
// errors are generic.
func KindOf(err error) Kind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindGeneric
}

// PlaylistOf returns the playlist handle carried by err, if any.
func PlaylistOf(err error) (PlaylistHandle, bool) {
	var re *ResolutionError
	if errors.As(err, &re) && re.Kind == KindPlaylistDetected && re.Playlist != nil {
		return *re.Playlist, true
	}
	return PlaylistHandle{}, false
}

package audio

import (
	"context"
	"errors"
)

var (
	// ErrBusy is returned by Play while another play is outstanding
	ErrBusy = errors.New("sink is already playing")

	// ErrSinkClosed is returned once the sink has been disconnected
	ErrSinkClosed = errors.New("sink is closed")
)

// Sink is an audio output. At most one Play may be outstanding at a time.
type Sink interface {
	// Play starts streaming src. onFinished is called exactly once when the
	// stream ends, with an error if playback failed and nil on natural end
	// or Stop. If Play itself returns an error, onFinished is never called.
	Play(src string, onFinished func(error)) error

	// Pause pauses the current playback.
	Pause() error

	// Resume resumes paused playback.
	Resume() error

	// Stop ends the current playback early. It is a no-op when idle.
	Stop() error

	// Disconnect stops playback and releases the output.
	Disconnect(ctx context.Context) error
}

// ListenerCounter is implemented by sinks that know how many people are
// listening to them.
type ListenerCounter interface {
	Listeners() int
}

// State represents the current state of a sink.
type State int32

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

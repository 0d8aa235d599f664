// Package audio provides the output side of playback: the Sink contract the
// player drives, a Discord voice implementation that streams through ffmpeg
// and a mock sink for tests.
package audio

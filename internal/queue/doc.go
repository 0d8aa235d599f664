// Package queue holds the producer side of playback. A SongQueue accepts
// requests, resolves them one at a time on a background worker in submission
// order and exposes the resolved tracks as a FIFO for the player.
package queue

// Package player drives an audio sink through the tracks of a song queue.
//
// A Player runs at most one consumption loop. The loop asks the queue for the
// next ready track, plays it and waits for the sink to report completion.
// When the queue is exhausted and looping is enabled, finished tracks are
// replayed in the order they finished. The loop ends once nothing is left
// and is restarted by the next Play.
package player

// Package bot is the Discord front-end of the music player. It registers the
// slash commands, connects to voice channels through disgo and reports the
// outcome of every play request to the channel it came from.
package bot

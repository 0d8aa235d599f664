// Package session keeps one queue and player per guild.
//
// Sessions are created on the first play request of a guild and destroyed on
// an explicit stop, when nobody is left listening, or after the player has
// been idle for a number of consecutive checks.
package session

// Package cache memoizes resolved tracks by canonical URL and by the query
// that produced them. Entries whose stream URL has expired are dropped on read.
// A Manager prunes the cache periodically and persists it to a zstd
// compressed snapshot between runs.
package cache

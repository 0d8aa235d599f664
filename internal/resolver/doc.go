// Package resolver turns user queries into playable tracks. The YtDlp
// resolver searches YouTube and extracts stream URLs with yt-dlp, Cached
// memoizes any resolver through a cache.TrackCache.
package resolver

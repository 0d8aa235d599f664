package resolver

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
)

var (
	videoPattern    = regexp.MustCompile(`^https?://(?:www\.|m\.|music\.)?youtu(?:be\.com/watch\?v=|\.be/)([\w\-]+)`)
	playlistPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?youtube\.com/(?:playlist\?list=|watch\?.*?list=)([\w\-]+)`)
)

// IsVideoURL reports whether query is a single YouTube video link.
func IsVideoURL(query string) bool {
	return videoPattern.MatchString(query)
}

// VideoID returns the id of a YouTube video link.
func VideoID(query string) (string, bool) {
	m := videoPattern.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CanonicalURL returns the watch URL of a video link, dropping short links,
// timestamps and other parameters. Anything else is returned unchanged.
func CanonicalURL(query string) string {
	if id, ok := VideoID(query); ok {
		return VideoURL(id)
	}
	return query
}

// VideoURL returns the canonical watch URL for a video id.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// ParsePlaylist reports whether query is a YouTube playlist link and returns
// its handle. The 1-based index= parameter becomes a 0-based start index.
func ParsePlaylist(query string) (track.PlaylistHandle, bool) {
	m := playlistPattern.FindStringSubmatch(query)
	if m == nil {
		return track.PlaylistHandle{}, false
	}

	h := track.PlaylistHandle{
		ID:  m[1],
		URL: "https://www.youtube.com/playlist?list=" + m[1],
	}

	u := query
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	if parsed, err := url.Parse(u); err == nil {
		if idx, err := strconv.Atoi(parsed.Query().Get("index")); err == nil && idx > 0 {
			h.Index = idx - 1
		}
	}
	return h, true
}

// streamExpiry reads the expire= unix timestamp carried by YouTube stream
// URLs. It returns the zero time when there is none.
func streamExpiry(stream string) time.Time {
	u, err := url.Parse(stream)
	if err != nil {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(u.Query().Get("expire"), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

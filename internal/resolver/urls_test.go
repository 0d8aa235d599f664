package resolver

import (
	"testing"
	"time"
)

func TestIsVideoURL(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"never gonna give you up", false},
		{"https://example.com/watch?v=dQw4w9WgXcQ", false},
		{"https://www.youtube.com/playlist?list=PL123", false},
	}

	for _, tt := range tests {
		if got := IsVideoURL(tt.query); got != tt.want {
			t.Errorf("IsVideoURL(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestCanonicalURL(t *testing.T) {
	const want = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	tests := []struct {
		query string
		want  string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", want},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", want},
		{"https://youtu.be/dQw4w9WgXcQ", want},
		{"https://youtu.be/dQw4w9WgXcQ?t=30", want},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", want},
		{"never gonna give you up", "never gonna give you up"},
		{"https://example.com/song.mp3", "https://example.com/song.mp3"},
	}

	for _, tt := range tests {
		if got := CanonicalURL(tt.query); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestParsePlaylist(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
		id    string
		index int
	}{
		{"https://www.youtube.com/playlist?list=PLabc_1-2", true, "PLabc_1-2", 0},
		{"youtube.com/playlist?list=PLabc", true, "PLabc", 0},
		{"https://www.youtube.com/watch?v=xyz&list=PLabc&index=4", true, "PLabc", 3},
		{"https://www.youtube.com/watch?v=xyz&list=PLabc&index=0", true, "PLabc", 0},
		{"https://www.youtube.com/watch?v=xyz", false, "", 0},
		{"some search", false, "", 0},
	}

	for _, tt := range tests {
		h, ok := ParsePlaylist(tt.query)
		if ok != tt.ok {
			t.Errorf("ParsePlaylist(%q) ok = %v, want %v", tt.query, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if h.ID != tt.id || h.Index != tt.index {
			t.Errorf("ParsePlaylist(%q) = %+v, want id %s index %d", tt.query, h, tt.id, tt.index)
		}
		if h.URL != "https://www.youtube.com/playlist?list="+tt.id {
			t.Errorf("ParsePlaylist(%q) url = %s", tt.query, h.URL)
		}
	}
}

func TestStreamExpiry(t *testing.T) {
	got := streamExpiry("https://rr1.googlevideo.com/videoplayback?expire=1714567890&ei=abc")
	if !got.Equal(time.Unix(1714567890, 0)) {
		t.Errorf("Unexpected expiry %v", got)
	}

	for _, s := range []string{"https://example.com/a.mp3", "https://x/?expire=soon", "::bad"} {
		if got := streamExpiry(s); !got.IsZero() {
			t.Errorf("streamExpiry(%q) = %v, want zero", s, got)
		}
	}
}

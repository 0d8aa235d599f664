package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"golang.org/x/time/rate"
)

const ageGateMessage = "Sign in to confirm your age"

// Config holds configuration for the yt-dlp resolver.
type Config struct {
	// CookiesPath points at a Netscape cookies file used for age restricted
	// videos. It is only passed to yt-dlp while the file exists.
	CookiesPath string

	// Proxy is forwarded to yt-dlp when set
	Proxy string

	// Rate limit resolutions per minute to avoid being blocked (defaults to 30)
	RequestsPerMinute int

	// MaxPlaylistItems caps playlist expansion (defaults to 100)
	MaxPlaylistItems int

	// Lookup returns an already resolved track by canonical URL. Searches
	// that land on a known video skip the metadata extraction.
	Lookup func(url string) (track.Track, bool)
}

// YtDlp resolves queries through YouTube search and yt-dlp.
type YtDlp struct {
	cookiesPath      string
	cookies          atomic.Bool
	proxy            string
	maxPlaylistItems int

	// Rate limiting to avoid being blocked by YouTube
	rateLimiter *rate.Limiter

	searcher *ytsearch.Client
	lookup   func(url string) (track.Track, bool)
	logger   *log.Logger

	find  func(ctx context.Context, query string) (string, error)
	fetch func(ctx context.Context, query, url string) (track.Track, error)
}

// NewYtDlp creates a yt-dlp backed resolver.
func NewYtDlp(config Config) *YtDlp {
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 30
	}
	if config.MaxPlaylistItems == 0 {
		config.MaxPlaylistItems = 100
	}

	y := &YtDlp{
		cookiesPath:      config.CookiesPath,
		proxy:            config.Proxy,
		maxPlaylistItems: config.MaxPlaylistItems,
		rateLimiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 3),
		searcher:         ytsearch.NewClient(nil),
		lookup:           config.Lookup,
		logger:           log.WithPrefix("resolver"),
	}
	y.find = y.search
	y.fetch = y.extract
	if config.CookiesPath != "" {
		y.SetCookiesAvailable(fileExists(config.CookiesPath))
	}
	return y
}

// SetCookiesAvailable toggles passing the cookies file to yt-dlp.
func (y *YtDlp) SetCookiesAvailable(ok bool) {
	if y.cookies.Swap(ok) == ok {
		return
	}
	if ok {
		y.logger.Info("Cookies file loaded", "path", y.cookiesPath)
	} else {
		y.logger.Info("Cookies file not found, age restricted songs are unavailable", "path", y.cookiesPath)
	}
}

// CookiesPath returns the configured cookies file.
func (y *YtDlp) CookiesPath() string {
	return y.cookiesPath
}

// Resolve implements Resolver.
func (y *YtDlp) Resolve(ctx context.Context, query string) (track.Track, error) {
	if h, ok := ParsePlaylist(query); ok {
		return track.Track{}, track.PlaylistDetected(query, h)
	}

	if err := y.rateLimiter.Wait(ctx); err != nil {
		return track.Track{}, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	url := CanonicalURL(query)
	if !IsVideoURL(query) {
		var err error
		if url, err = y.find(ctx, query); err != nil {
			return track.Track{}, err
		}
	}
	if y.lookup != nil {
		if t, ok := y.lookup(url); ok {
			y.logger.Debug("Found resolved track", "query", query, "url", url)
			return t, nil
		}
	}

	start := time.Now()
	t, err := y.fetch(ctx, query, url)
	if err != nil {
		return track.Track{}, err
	}
	y.logger.Debug("Resolved track", "query", query, "title", t.Title, "took", time.Since(start))
	return t, nil
}

// Expand implements Expander.
func (y *YtDlp) Expand(ctx context.Context, h track.PlaylistHandle) (track.Playlist, error) {
	if err := y.rateLimiter.Wait(ctx); err != nil {
		return track.Playlist{}, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	res, err := y.command().
		FlatPlaylist().
		Print("%(playlist_title)s\t%(url)s\t%(title)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", y.maxPlaylistItems)).
		Run(ctx, y.args(h.URL)...)
	if err != nil {
		if ctx.Err() != nil {
			return track.Playlist{}, ctx.Err()
		}
		return track.Playlist{}, track.NotFound(h.URL, err)
	}

	p := parsePlaylist(res.Stdout)
	if len(p.Entries) == 0 {
		return track.Playlist{}, track.NotFound(h.URL, errors.New("empty playlist"))
	}
	p.URL = h.URL
	p.Entries = track.Rotate(p.Entries, h.Index)
	return p, nil
}

func (y *YtDlp) search(ctx context.Context, query string) (string, error) {
	r, err := y.searcher.Search(ctx, query)
	if err == nil {
		for _, v := range r.Results {
			if v.VideoID != "" {
				return VideoURL(v.VideoID), nil
			}
		}
	} else {
		y.logger.Debug("Search failed, falling back to yt-dlp", "query", query, "err", err)
	}

	res, err := y.command().
		FlatPlaylist().
		Print("%(id)s").
		PlaylistItems("1").
		Run(ctx, y.args("ytsearch1:"+query)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", track.NotFound(query, err)
	}

	id := strings.TrimSpace(strings.SplitN(res.Stdout, "\n", 2)[0])
	if id == "" {
		return "", track.NotFound(query, nil)
	}
	return VideoURL(id), nil
}

func (y *YtDlp) extract(ctx context.Context, query, url string) (track.Track, error) {
	res, err := y.command().
		Print("%(title)s\t%(duration)s\t%(is_live)s\t%(thumbnail)s\t%(url)s").
		Format("bestaudio/best").
		NoPlaylist().
		Run(ctx, y.args("--skip-download", url)...)
	if err != nil {
		if ctx.Err() != nil {
			return track.Track{}, ctx.Err()
		}
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return track.Track{}, classify(query, stderr, err)
	}
	return parseMetadata(query, url, res.Stdout)
}

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if y.proxy != "" {
		cmd.Proxy(y.proxy)
	}
	return cmd
}

func (y *YtDlp) args(target ...string) []string {
	var args []string
	if y.cookies.Load() {
		args = append(args, "--cookies", y.cookiesPath)
	}
	return append(args, target...)
}

// classify maps a yt-dlp failure to a resolution error.
func classify(query, stderr string, err error) error {
	if strings.Contains(stderr, ageGateMessage) || strings.Contains(err.Error(), ageGateMessage) {
		return track.Restricted(query, err)
	}
	return track.NotFound(query, err)
}

// parseMetadata reads the tab separated line printed by extract.
func parseMetadata(query, url, out string) (track.Track, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, "\t")
	if len(parts) < 5 {
		return track.Track{}, track.Generic(query, fmt.Errorf("unexpected yt-dlp output %q", line))
	}

	if parts[2] == "True" {
		return track.Track{}, track.LiveUnsupported(query)
	}

	stream := parts[4]
	if stream == "" || stream == "NA" {
		return track.Track{}, track.Generic(query, errors.New("no stream url"))
	}

	thumb := parts[3]
	if thumb == "NA" {
		thumb = ""
	}

	return track.Track{
		Title:     parts[0],
		URL:       url,
		Duration:  parseSeconds(parts[1]),
		Thumbnail: thumb,
		StreamURL: stream,
		ExpiresAt: streamExpiry(stream),
	}, nil
}

// parsePlaylist reads the lines printed by Expand.
func parsePlaylist(out string) track.Playlist {
	var p track.Playlist
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 || ps[1] == "" || ps[1] == "NA" {
			continue
		}
		if p.Title == "" && ps[0] != "NA" {
			p.Title = ps[0]
		}
		p.Entries = append(p.Entries, track.Entry{
			URL:      ps[1],
			Title:    ps[2],
			Duration: parseSeconds(ps[3]),
		})
	}
	return p
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/player"
	"github.com/KrystianJachna/DiscordMusicBot/internal/session"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/disgoorg/disgo/discord"
	"github.com/dustin/go-humanize"
)

const (
	colorSuccess = 0x2ecc71
	colorError   = 0xe74c3c
	colorInfo    = 0x3498db

	// queue listings are cut after this many entries
	maxListed = 15
)

func embed(title, description string, color int) discord.Embed {
	return discord.Embed{Title: title, Description: description, Color: color}
}

func withFooter(e discord.Embed, text string) discord.Embed {
	e.Footer = &discord.EmbedFooter{Text: text}
	return e
}

func withField(e discord.Embed, name, value string) discord.Embed {
	e.Fields = append(e.Fields, discord.EmbedField{Name: name, Value: value})
	return e
}

// formatDuration renders d as h:mm:ss or m:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func link(title, url string) string {
	if url == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, url)
}

// outcomeEmbed describes how a play request settled.
func outcomeEmbed(o track.Outcome) discord.Embed {
	switch {
	case o.Track != nil:
		return addedToQueue(*o.Track, o.QueueLength)
	case o.Playlist != nil:
		return playlistAdded(*o.Playlist, o.QueueLength)
	}

	query := o.Request.Query
	switch track.KindOf(o.Err) {
	case track.KindNotFound:
		return withFooter(embed("🔍 No Results Found",
			fmt.Sprintf("We couldn't find any results for: *\"%s\"*", query), colorError),
			"💡Tip: Try using different keywords or check your spelling")
	case track.KindLiveUnsupported:
		return withFooter(embed("🎥 Live Stream",
			fmt.Sprintf("Found a live stream for: *\"%s\"*\nWe currently do not support live streams", query), colorError),
			"💡Tip: Try using different keywords or search for a different song")
	case track.KindRestricted:
		return withFooter(embed("🔞 Age Restricted Content",
			fmt.Sprintf("The song: *\"%s\"* is age restricted. Provide a cookies file to play it.", query), colorError),
			"💡Tip: Search for a different song")
	default:
		return embed("⛔ Download Error",
			fmt.Sprintf("An error occurred while downloading the song: %s.", query), colorError)
	}
}

func addedToQueue(t track.Track, queueLength int) discord.Embed {
	e := embed("🎶 Song Added to Queue", "🔗 "+link(t.Title, t.URL), colorSuccess)
	e = withField(e, "Duration", formatDuration(t.Duration))
	e = withField(e, "Position", humanize.Ordinal(queueLength))
	thumb := t.Thumbnail
	if thumb == "" {
		thumb = t.URL
	}
	if thumb != "" {
		e.Thumbnail = &discord.EmbedResource{URL: thumb}
	}
	return e
}

func playlistAdded(p track.Playlist, queueLength int) discord.Embed {
	e := embed("📋 Playlist Added to Queue", "🔗 "+link(p.Title, p.URL), colorSuccess)
	e = withField(e, "Songs", humanize.Comma(int64(len(p.Entries))))
	e = withField(e, "Duration", formatDuration(p.Duration()))
	return withField(e, "Queue Length", humanize.Comma(int64(queueLength)))
}

func queueEmbed(info player.Info, looping bool) discord.Embed {
	var e discord.Embed
	if info.NowPlaying == nil && len(info.Upcoming) == 0 {
		e = embed("🎵 Music Queue", "No songs in queue", colorSuccess)
	} else {
		desc := "waiting..."
		if info.NowPlaying != nil {
			desc = "**Now Playing**: " + link(info.NowPlaying.Title, info.NowPlaying.URL)
		}
		e = embed("🎵 Music Queue", desc, colorSuccess)

		next := "No songs in queue"
		if n := len(info.Upcoming); n > 0 {
			listed := info.Upcoming
			if n > maxListed {
				listed = listed[:maxListed]
			}
			next = "- " + strings.Join(listed, "\n- ")
			if n > maxListed {
				next += fmt.Sprintf("\n*...and %s more*", humanize.Comma(int64(n-maxListed)))
			}
		}
		e = withField(e, "Coming Next:", next)
	}
	if looping {
		e = withFooter(e, "🔄 Looping is enabled")
	}
	return e
}

func skipped(queueLength int, looping bool) discord.Embed {
	e := embed("⏭️ Song skipped", fmt.Sprintf("**Queue Length**: %d", queueLength), colorSuccess)
	if looping {
		e = withFooter(e, "🔄 Looping is enabled")
	}
	return e
}

func loopStatus(enabled bool) discord.Embed {
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	return embed("🔄 Looping", "**Status**: "+status, colorSuccess)
}

func paused(t track.Track) discord.Embed {
	return embed("⏸️ Paused", "Song: "+link(t.Title, t.URL), colorSuccess)
}

func resumed(t track.Track) discord.Embed {
	return embed("▶️ Resumed", "Song: "+link(t.Title, t.URL), colorSuccess)
}

func searching(query string) discord.Embed {
	return embed("🔎 Searching", fmt.Sprintf("*\"%s\"*", query), colorInfo)
}

var (
	msgStopped  = embed("🛑 Stopped", "The music player has been stopped", colorSuccess)
	msgCleared  = embed("🧹 Queue Cleared", "The music queue has been cleared", colorSuccess)
	msgShuffled = embed("🔀 Queue Shuffled", "The music queue has been shuffled", colorSuccess)

	msgSkipError  = embed("⛔ Skip Error", "There is no song currently playing", colorError)
	msgNotPlaying = embed("⏯️ Not Playing", "There is no song currently playing", colorError)

	msgNotInVoice = embed("🔇 Not in Voice Channel",
		"You must be in a voice channel to use this command!\nPlease join a voice channel and try again.", colorError)
	msgNotConnected = withFooter(embed("🔇 Not Connected",
		"Bot needs to be connected to a voice channel to use this command", colorError),
		"💡Tip: Play a song first to connect the bot to a voice channel")
)

func notInSameChannel(channelID fmt.Stringer) discord.Embed {
	return embed("⛔ Not in the Same Voice Channel",
		fmt.Sprintf("You must be in the same voice channel as the bot: <#%s>", channelID), colorError)
}

func commandFailed(err error) discord.Embed {
	return embed("⛔ Something went wrong", err.Error(), colorError)
}

// sessionEnded is posted when a session is destroyed by a monitor.
func sessionEnded(reason session.Reason) discord.Embed {
	switch reason {
	case session.ReasonNoListeners:
		return embed("👋 Left the Channel", "Everybody left, so did I", colorInfo)
	case session.ReasonInactive:
		return embed("👋 Left the Channel", "Nothing has been played for a while", colorInfo)
	}
	return embed("👋 Left the Channel", "The music player has been stopped", colorInfo)
}

func helpEmbed() discord.Embed {
	e := embed("Music Bot", "**The available commands are:**", colorInfo)
	for _, c := range commandList {
		e = withField(e, "/"+c.name, c.description)
	}
	return e
}

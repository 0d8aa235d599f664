package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/audio"
	"github.com/KrystianJachna/DiscordMusicBot/internal/session"
	"github.com/disgoorg/snowflake/v2"
)

const voiceOpenTimeout = 15 * time.Second

// connector joins voiceID and wraps the connection in a VoiceSink.
func (b *Bot) connector(guildID, voiceID, textID snowflake.ID) session.ConnectFunc {
	return func(ctx context.Context) (audio.Sink, error) {
		conn := b.client.VoiceManager.CreateConn(guildID)

		openCtx, cancel := context.WithTimeout(ctx, voiceOpenTimeout)
		defer cancel()
		if err := conn.Open(openCtx, voiceID, false, true); err != nil {
			conn.Close(context.Background())
			return nil, fmt.Errorf("failed to join voice channel %s: %w", voiceID, err)
		}
		b.logger.Info("Joined voice", "guild", guildID, "channel", voiceID)

		b.setChannels(guildID, channels{voice: voiceID, text: textID})
		return audio.NewVoiceSink(conn, audio.VoiceConfig{
			FFmpegPath: b.config.FFmpegPath,
			Bitrate:    b.config.Bitrate,
			Listeners:  func() int { return b.listeners(guildID) },
		}), nil
	}
}

// listeners counts the people other than bots in the session's channel.
func (b *Bot) listeners(guildID snowflake.ID) int {
	ch, ok := b.channelsOf(guildID)
	if !ok {
		return 0
	}

	self := b.client.ID()
	n := 0
	for state := range b.client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != ch.voice || state.UserID == self {
			continue
		}
		if m, ok := b.client.Caches.Member(guildID, state.UserID); ok && m.User.Bot {
			continue
		}
		n++
	}
	return n
}

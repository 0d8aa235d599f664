package bot

import (
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// sendFunc posts a message to a channel.
type sendFunc func(channelID snowflake.ID, msg discord.MessageCreate) error

// channelReporter posts the outcome of play requests to the text channel the
// request came from.
type channelReporter struct {
	channelID snowflake.ID
	send      sendFunc
	logger    *log.Logger
}

// Report implements track.Reporter.
func (r channelReporter) Report(o track.Outcome) {
	msg := discord.NewMessageCreateBuilder().AddEmbeds(outcomeEmbed(o)).Build()
	if err := r.send(r.channelID, msg); err != nil {
		r.logger.Warn("Failed to report outcome", "channel", r.channelID, "query", o.Request.Query, "err", err)
	}
}

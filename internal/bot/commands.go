package bot

import (
	"context"
	"errors"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/player"
	"github.com/KrystianJachna/DiscordMusicBot/internal/session"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

type handlerFunc func(b *Bot, e *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData)

type command struct {
	name        string
	description string
	options     []discord.ApplicationCommandOption
}

var commandList = []command{
	{
		name:        "play",
		description: "Play a song from YouTube or add it to the queue",
		options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "query",
				Description: "A URL, a playlist or a search query",
				Required:    true,
			},
		},
	},
	{name: "skip", description: "Skip the current song"},
	{name: "stop", description: "Stop playback, clear the queue and leave the channel"},
	{name: "pause", description: "Pause the current song"},
	{name: "resume", description: "Resume the paused song"},
	{name: "loop", description: "Toggle looping of played songs"},
	{name: "queue", description: "Show the current queue"},
	{name: "clear", description: "Clear the queue without stopping the current song"},
	{name: "shuffle", description: "Shuffle the queue"},
	{name: "help", description: "List the available commands"},
}

// handlers maps command names to their handlers.
func handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"play":    (*Bot).handlePlay,
		"skip":    (*Bot).handleSkip,
		"stop":    (*Bot).handleStop,
		"pause":   (*Bot).handlePause,
		"resume":  (*Bot).handleResume,
		"loop":    (*Bot).handleLoop,
		"queue":   (*Bot).handleQueue,
		"clear":   (*Bot).handleClear,
		"shuffle": (*Bot).handleShuffle,
		"help":    (*Bot).handleHelp,
	}
}

// commandCreates returns the slash command definitions.
func commandCreates() []discord.ApplicationCommandCreate {
	out := make([]discord.ApplicationCommandCreate, 0, len(commandList))
	for _, c := range commandList {
		out = append(out, discord.SlashCommandCreate{
			Name:        c.name,
			Description: c.description,
			Options:     c.options,
		})
	}
	return out
}

func reply(e *events.ApplicationCommandInteractionCreate, embed discord.Embed) {
	msg := discord.NewMessageCreateBuilder().AddEmbeds(embed).Build()
	if err := e.CreateMessage(msg); err != nil {
		log.Warn("Failed to reply", "command", e.Data.CommandName(), "err", err)
	}
}

func (b *Bot) handlePlay(e *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := e.GuildID()
	if guildID == nil {
		reply(e, msgNotInVoice)
		return
	}
	vs, ok := e.Client().Caches.VoiceState(*guildID, e.User().ID)
	if !ok || vs.ChannelID == nil {
		reply(e, msgNotInVoice)
		return
	}
	if ch, ok := b.channelsOf(*guildID); ok && ch.voice != *vs.ChannelID {
		reply(e, notInSameChannel(ch.voice))
		return
	}

	query := data.String("query")
	if err := e.DeferCreateMessage(false); err != nil {
		b.logger.Warn("Failed to defer reply", "err", err)
	}
	update := func(embed discord.Embed) {
		msg := discord.NewMessageUpdateBuilder().AddEmbeds(embed).Build()
		if _, err := e.Client().Rest.UpdateInteractionResponse(e.ApplicationID(), e.Token(), msg); err != nil {
			b.logger.Warn("Failed to update reply", "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	textID := e.Channel().ID()
	sess, err := b.registry.GetOrCreate(ctx, *guildID, b.connector(*guildID, *vs.ChannelID, textID))
	if err != nil {
		b.logger.Error("Could not start session", "guild", *guildID, "err", err)
		update(commandFailed(err))
		return
	}

	req := track.Request{Query: query, Reporter: b.reporter(textID)}
	if err := sess.Player.Play(req); err != nil {
		update(commandFailed(err))
		return
	}
	b.logger.Info("Play requested", "guild", *guildID, "user", e.User().Username, "query", query)
	update(searching(query))
}

// session returns the session the command applies to. It replies on its own
// when there is none or the user is elsewhere.
func (b *Bot) session(e *events.ApplicationCommandInteractionCreate) (*session.Session, bool) {
	guildID := e.GuildID()
	if guildID == nil {
		reply(e, msgNotConnected)
		return nil, false
	}
	sess, ok := b.registry.Get(*guildID)
	if !ok {
		reply(e, msgNotConnected)
		return nil, false
	}
	ch, ok := b.channelsOf(*guildID)
	if ok {
		vs, inVoice := e.Client().Caches.VoiceState(*guildID, e.User().ID)
		if !inVoice || vs.ChannelID == nil || *vs.ChannelID != ch.voice {
			reply(e, notInSameChannel(ch.voice))
			return nil, false
		}
	}
	return sess, true
}

func (b *Bot) handleSkip(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	if err := sess.Player.Skip(); err != nil {
		if errors.Is(err, player.ErrNotPlaying) {
			reply(e, msgSkipError)
			return
		}
		reply(e, commandFailed(err))
		return
	}
	reply(e, skipped(sess.Player.QueueLength(), sess.Player.Loop()))
}

func (b *Bot) handleStop(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	reply(e, msgStopped)
	b.destroySession(sess.GuildID)
}

func (b *Bot) handlePause(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	if err := sess.Player.Pause(); err != nil {
		b.replyPlaybackError(e, err)
		return
	}
	if t, ok := sess.Player.NowPlaying(); ok {
		reply(e, paused(t))
		return
	}
	reply(e, msgNotPlaying)
}

func (b *Bot) handleResume(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	if err := sess.Player.Resume(); err != nil {
		b.replyPlaybackError(e, err)
		return
	}
	if t, ok := sess.Player.NowPlaying(); ok {
		reply(e, resumed(t))
		return
	}
	reply(e, msgNotPlaying)
}

func (b *Bot) replyPlaybackError(e *events.ApplicationCommandInteractionCreate, err error) {
	if errors.Is(err, player.ErrNotPlaying) {
		reply(e, msgNotPlaying)
		return
	}
	b.logger.Debug("Playback command rejected", "command", e.Data.CommandName(), "err", err)
	reply(e, commandFailed(err))
}

func (b *Bot) handleLoop(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	reply(e, loopStatus(sess.Player.ToggleLoop()))
}

func (b *Bot) handleQueue(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	reply(e, queueEmbed(sess.Player.QueueInfo(), sess.Player.Loop()))
}

func (b *Bot) handleClear(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	sess.Player.ClearQueue()
	reply(e, msgCleared)
}

func (b *Bot) handleShuffle(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	sess, ok := b.session(e)
	if !ok {
		return
	}
	sess.Player.Shuffle()
	reply(e, msgShuffled)
}

func (b *Bot) handleHelp(e *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	reply(e, helpEmbed())
}

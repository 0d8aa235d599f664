package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/player"
	"github.com/KrystianJachna/DiscordMusicBot/internal/resolver"
	"github.com/KrystianJachna/DiscordMusicBot/internal/session"
	"github.com/charmbracelet/log"
	"github.com/disgoorg/disgo"
	disgobot "github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
)

// Bot connects the session registry to Discord.
type Bot struct {
	config   Config
	client   *disgobot.Client
	registry *session.Registry
	commands map[string]handlerFunc
	logger   *log.Logger

	mu       sync.Mutex
	channels map[snowflake.ID]channels
}

// channels are the voice channel a session plays in and the text channel it
// reports to.
type channels struct {
	voice snowflake.ID
	text  snowflake.ID
}

// New creates a bot resolving requests with res. The gateway is not opened
// until Open.
func New(cfg Config, res resolver.Resolver, opts ...session.Option) (*Bot, error) {
	b := &Bot{
		config:   cfg,
		commands: handlers(),
		logger:   log.WithPrefix("bot"),
		channels: make(map[snowflake.ID]channels),
	}

	sessionCfg := session.Config{
		ListenerInterval:   cfg.NoUsersDisconnectTimeout,
		InactivityInterval: cfg.NoMusicDisconnectTimeout,
		InactivityCycles:   cfg.InactivityCycles,
	}
	opts = append(opts,
		session.OnDestroy(b.sessionDestroyed),
		session.WithPlayerOptions(player.WithLogger(log.WithPrefix("player"))),
	)
	b.registry = session.NewRegistry(res, sessionCfg, opts...)

	client, err := disgo.New(cfg.Token,
		disgobot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildVoiceStates,
			),
		),
		disgobot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagChannels, cache.FlagVoiceStates),
		),
		disgobot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		disgobot.WithEventListenerFunc(b.onApplicationCommand),
		disgobot.WithEventListenerFunc(b.onVoiceStateUpdate),
		disgobot.WithEventListenerFunc(b.onReady),
		disgobot.WithLogger(slog.New(log.WithPrefix("disgo"))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord client: %w", err)
	}
	b.client = client
	return b, nil
}

// Registry returns the session registry.
func (b *Bot) Registry() *session.Registry {
	return b.registry
}

// Open registers the slash commands, connects to the gateway and starts the
// session monitors.
func (b *Bot) Open(ctx context.Context) error {
	if err := b.registerCommands(); err != nil {
		return err
	}
	if err := b.client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	b.registry.Start()
	return nil
}

func (b *Bot) registerCommands() error {
	cmds := commandCreates()
	if b.config.GuildID != "" {
		guildID, err := snowflake.Parse(b.config.GuildID)
		if err != nil {
			return fmt.Errorf("invalid guild id %q: %w", b.config.GuildID, err)
		}
		if _, err := b.client.Rest.SetGuildCommands(b.client.ApplicationID, guildID, cmds); err != nil {
			return fmt.Errorf("failed to register guild commands: %w", err)
		}
		b.logger.Info("Registered guild commands", "guild", guildID, "count", len(cmds))
		return nil
	}
	if _, err := b.client.Rest.SetGlobalCommands(b.client.ApplicationID, cmds); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.logger.Info("Registered global commands", "count", len(cmds))
	return nil
}

// Close destroys every session and disconnects from Discord.
func (b *Bot) Close(ctx context.Context) error {
	err := b.registry.Close(ctx)
	b.client.Close(ctx)
	return err
}

func (b *Bot) onReady(e *events.Ready) {
	b.logger.Info("Logged in", "user", e.User.Username, "id", e.User.ID)
}

func (b *Bot) onApplicationCommand(e *events.ApplicationCommandInteractionCreate) {
	data := e.SlashCommandInteractionData()
	h, ok := b.commands[data.CommandName()]
	if !ok {
		b.logger.Warn("Unknown command", "name", data.CommandName())
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Command panicked", "command", data.CommandName(), "panic", r, "stack", string(debug.Stack()))
			}
		}()
		h(b, e, data)
	}()
}

// onVoiceStateUpdate tears the session down when the bot is removed from its
// voice channel and follows it when it is moved.
func (b *Bot) onVoiceStateUpdate(e *events.GuildVoiceStateUpdate) {
	if e.VoiceState.UserID != e.Client().ID() {
		return
	}
	guildID := e.VoiceState.GuildID

	if e.VoiceState.ChannelID == nil {
		if _, ok := b.registry.Get(guildID); !ok {
			return
		}
		b.logger.Info("Removed from voice", "guild", guildID)
		// Destroying closes the voice connection, which must not happen on
		// the gateway goroutine.
		go b.destroySession(guildID)
		return
	}

	b.mu.Lock()
	if ch, ok := b.channels[guildID]; ok && ch.voice != *e.VoiceState.ChannelID {
		ch.voice = *e.VoiceState.ChannelID
		b.channels[guildID] = ch
		b.logger.Debug("Moved to another channel", "guild", guildID, "channel", ch.voice)
	}
	b.mu.Unlock()
}

func (b *Bot) channelsOf(guildID snowflake.ID) (channels, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[guildID]
	return ch, ok
}

func (b *Bot) setChannels(guildID snowflake.ID, ch channels) {
	b.mu.Lock()
	b.channels[guildID] = ch
	b.mu.Unlock()
}

// destroySession shuts down the session of guildID.
func (b *Bot) destroySession(guildID snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.registry.Destroy(ctx, guildID); err != nil {
		b.logger.Warn("Session did not stop cleanly", "guild", guildID, "err", err)
	}
}

func (b *Bot) sessionDestroyed(guildID snowflake.ID, reason session.Reason) {
	b.mu.Lock()
	ch, ok := b.channels[guildID]
	delete(b.channels, guildID)
	b.mu.Unlock()

	if !ok || reason == session.ReasonStopped || reason == session.ReasonShutdown {
		return
	}
	msg := discord.NewMessageCreateBuilder().AddEmbeds(sessionEnded(reason)).Build()
	if err := b.send(ch.text, msg); err != nil {
		b.logger.Warn("Failed to announce leaving", "guild", guildID, "err", err)
	}
}

func (b *Bot) send(channelID snowflake.ID, msg discord.MessageCreate) error {
	_, err := b.client.Rest.CreateMessage(channelID, msg)
	return err
}

func (b *Bot) reporter(channelID snowflake.ID) channelReporter {
	return channelReporter{
		channelID: channelID,
		send:      b.send,
		logger:    b.logger,
	}
}

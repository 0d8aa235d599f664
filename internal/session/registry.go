package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/audio"
	"github.com/KrystianJachna/DiscordMusicBot/internal/player"
	"github.com/KrystianJachna/DiscordMusicBot/internal/queue"
	"github.com/KrystianJachna/DiscordMusicBot/internal/resolver"
	"github.com/charmbracelet/log"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/singleflight"
)

// ErrRegistryClosed is returned by GetOrCreate after Close
var ErrRegistryClosed = errors.New("session registry is closed")

// ConnectFunc opens the audio sink of a new session.
type ConnectFunc func(ctx context.Context) (audio.Sink, error)

// Reason says why a session was destroyed.
type Reason string

const (
	ReasonStopped     Reason = "stopped"
	ReasonNoListeners Reason = "no_listeners"
	ReasonInactive    Reason = "inactive"
	ReasonShutdown    Reason = "shutdown"
)

// Session is the queue and player of one guild.
type Session struct {
	GuildID   snowflake.ID
	Queue     *queue.SongQueue
	Player    *player.Player
	Sink      audio.Sink
	CreatedAt time.Time

	// consecutive inactivity checks that found the player idle
	idleChecks int
}

// Config contains configuration for the monitors.
type Config struct {
	// ListenerInterval is how often sessions without listeners are looked
	// for. Zero disables the check.
	ListenerInterval time.Duration

	// InactivityInterval is how often idle players are looked for. Zero
	// disables the check.
	InactivityInterval time.Duration

	// InactivityCycles is the number of consecutive idle checks after which
	// a session is destroyed.
	InactivityCycles int
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		ListenerInterval:   time.Minute,
		InactivityInterval: time.Minute,
		InactivityCycles:   5,
	}
}

// Registry maps guilds to their sessions.
type Registry struct {
	resolver resolver.Resolver
	config   Config
	logger   *log.Logger

	queueOpts  []queue.Option
	playerOpts []player.Option
	onDestroy  func(guildID snowflake.ID, reason Reason)
	now        func() time.Time

	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
	closed   bool
	group    singleflight.Group

	// Monitor control
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock sets the time source used for session ages.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithQueueOptions passes options to every queue the registry creates.
func WithQueueOptions(opts ...queue.Option) Option {
	return func(r *Registry) {
		r.queueOpts = append(r.queueOpts, opts...)
	}
}

// WithPlayerOptions passes options to every player the registry creates.
func WithPlayerOptions(opts ...player.Option) Option {
	return func(r *Registry) {
		r.playerOpts = append(r.playerOpts, opts...)
	}
}

// OnDestroy registers fn to be called after a session has been destroyed.
func OnDestroy(fn func(guildID snowflake.ID, reason Reason)) Option {
	return func(r *Registry) {
		r.onDestroy = fn
	}
}

// NewRegistry creates a registry whose sessions resolve requests with res.
// Players refresh expired looped tracks through res as well.
func NewRegistry(res resolver.Resolver, config Config, opts ...Option) *Registry {
	if config.InactivityCycles <= 0 {
		config.InactivityCycles = 1
	}
	r := &Registry{
		resolver: res,
		config:   config,
		logger:   log.WithPrefix("session"),
		sessions: make(map[snowflake.ID]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the session of guildID.
func (r *Registry) Get(guildID snowflake.ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// GetOrCreate returns the session of guildID, creating it with a sink from
// connect when there is none. Concurrent calls for the same guild connect
// only once.
func (r *Registry) GetOrCreate(ctx context.Context, guildID snowflake.ID, connect ConnectFunc) (*Session, error) {
	if s, ok := r.Get(guildID); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(guildID.String(), func() (any, error) {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		if s, ok := r.sessions[guildID]; ok {
			r.mu.Unlock()
			return s, nil
		}
		r.mu.Unlock()

		sink, err := connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect session %s: %w", guildID, err)
		}

		q := queue.New(r.resolver, r.queueOpts...)
		opts := append([]player.Option{player.WithRefresher(r.resolver)}, r.playerOpts...)
		s := &Session{
			GuildID:   guildID,
			Queue:     q,
			Player:    player.New(q, sink, opts...),
			Sink:      sink,
			CreatedAt: r.now(),
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			s.shutdown(ctx, r.logger)
			return nil, ErrRegistryClosed
		}
		r.sessions[guildID] = s
		n := len(r.sessions)
		r.mu.Unlock()

		r.logger.Info("Session created", "guild", guildID, "sessions", n)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Destroy stops and removes the session of guildID. Destroying a guild
// without a session is a no-op.
func (r *Registry) Destroy(ctx context.Context, guildID snowflake.ID) error {
	_, err := r.destroy(ctx, guildID, nil, ReasonStopped)
	return err
}

// destroy removes the session of guildID, or only want when it is set, and
// shuts it down. It reports whether a session was removed.
func (r *Registry) destroy(ctx context.Context, guildID snowflake.ID, want *Session, reason Reason) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	if ok && want != nil && s != want {
		ok = false
	}
	if ok {
		delete(r.sessions, guildID)
	}
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	err := s.shutdown(ctx, r.logger)
	r.logger.Info("Session destroyed", "guild", guildID, "reason", reason)
	if r.onDestroy != nil {
		r.onDestroy(guildID, reason)
	}
	return true, err
}

func (s *Session) shutdown(ctx context.Context, logger *log.Logger) error {
	err := s.Player.Stop(ctx)
	if err != nil {
		logger.Warn("Player did not stop cleanly", "guild", s.GuildID, "err", err)
	}
	s.Queue.Close()
	return err
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Start launches the listener and inactivity monitors.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.closed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if r.config.ListenerInterval > 0 {
		r.wg.Add(1)
		go r.monitor(ctx, r.config.ListenerInterval, r.CheckListeners)
	}
	if r.config.InactivityInterval > 0 {
		r.wg.Add(1)
		go r.monitor(ctx, r.config.InactivityInterval, r.CheckInactivity)
	}
}

func (r *Registry) monitor(ctx context.Context, interval time.Duration, check func(context.Context) int) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckListeners destroys every session whose sink reports no listeners and
// returns how many were destroyed. Sinks that cannot count listeners are
// skipped.
func (r *Registry) CheckListeners(ctx context.Context) int {
	destroyed := 0
	for _, s := range r.snapshot() {
		counter, ok := s.Sink.(audio.ListenerCounter)
		if !ok || counter.Listeners() > 0 {
			continue
		}
		r.logger.Debug("No listeners left", "guild", s.GuildID)
		if ok, _ := r.destroy(ctx, s.GuildID, s, ReasonNoListeners); ok {
			destroyed++
		}
	}
	return destroyed
}

// CheckInactivity counts consecutive idle checks per session and destroys
// the sessions that reached the configured number of cycles. Sessions younger
// than one inactivity interval are not checked. It returns how many were
// destroyed.
func (r *Registry) CheckInactivity(ctx context.Context) int {
	var expired []*Session

	now := r.now()
	r.mu.Lock()
	for _, s := range r.sessions {
		// A new session is idle until its first request is queued.
		if now.Sub(s.CreatedAt) < r.config.InactivityInterval {
			continue
		}
		if !s.Player.Idle() {
			s.idleChecks = 0
			continue
		}
		s.idleChecks++
		if s.idleChecks >= r.config.InactivityCycles {
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	destroyed := 0
	for _, s := range expired {
		if ok, _ := r.destroy(ctx, s.GuildID, s, ReasonInactive); ok {
			destroyed++
		}
	}
	return destroyed
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Close stops the monitors and destroys every session.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	ids := make([]snowflake.ID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	var errs []error
	for _, id := range ids {
		if _, err := r.destroy(ctx, id, nil, ReasonShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

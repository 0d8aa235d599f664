package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/audio"
	"github.com/KrystianJachna/DiscordMusicBot/internal/queue"
	"github.com/KrystianJachna/DiscordMusicBot/internal/resolver"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
)

var (
	// ErrNotPlaying is returned by operations that need a track to be playing
	ErrNotPlaying = errors.New("nothing is playing")

	// ErrStopped is returned once the player has been stopped
	ErrStopped = errors.New("player is stopped")
)

// Queue is the song queue consumed by a Player. *queue.SongQueue satisfies it.
type Queue interface {
	Add(req track.Request) error
	Next(ctx context.Context) (track.Track, error)
	Clear()
	Info() []string
	Shuffle()
	Len() int
	Active() bool
}

// Player plays the tracks of a queue through a sink.
type Player struct {
	queue     Queue
	sink      audio.Sink
	refresher resolver.Resolver
	logger    *log.Logger
	now       func() time.Time

	// State management
	mu         sync.Mutex
	nowPlaying *track.Track
	loop       bool
	looped     []track.Track
	clearing   bool
	processing bool
	stopped    bool
	cancel     context.CancelFunc
	done       chan struct{}

	stopOnce sync.Once
	stopErr  error

	stats Stats
}

// Stats tracks playback activity
type Stats struct {
	TracksPlayed int64
	PlayErrors   int64
	Skips        int64
	Replays      int64
	Refreshes    int64
	LastActivity time.Time
}

// Info describes what is playing and what comes next.
type Info struct {
	NowPlaying *track.Track
	Upcoming   []string
}

// Option configures a Player.
type Option func(*Player)

// WithRefresher sets the resolver used to renew looped tracks whose stream
// URL has expired. Without one, expired tracks are played as they are.
func WithRefresher(r resolver.Resolver) Option {
	return func(p *Player) {
		p.refresher = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Player) {
		p.logger = l
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(p *Player) {
		p.now = now
	}
}

// New creates a player consuming q into sink.
func New(q Queue, sink audio.Sink, opts ...Option) *Player {
	p := &Player{
		queue:  q,
		sink:   sink,
		logger: log.WithPrefix("player"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play queues req and starts the consumption loop if it is not running.
func (p *Player) Play(req track.Request) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	if err := p.queue.Add(req); err != nil {
		return fmt.Errorf("failed to queue %q: %w", req.Query, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		// Stop ran after the first check and may have cleared the queue
		// before req landed in it.
		p.queue.Clear()
		return ErrStopped
	}
	if !p.processing {
		p.startLocked()
	}
	return nil
}

func (p *Player) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.processing = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	p.logger.Debug("Consumption loop started")
}

// Pause pauses the current track.
func (p *Player) Pause() error {
	if _, ok := p.NowPlaying(); !ok {
		return ErrNotPlaying
	}
	return p.sink.Pause()
}

// Resume resumes the current track.
func (p *Player) Resume() error {
	if _, ok := p.NowPlaying(); !ok {
		return ErrNotPlaying
	}
	return p.sink.Resume()
}

// Skip ends the current track early. The loop then moves to the next one.
// The queue is left untouched.
func (p *Player) Skip() error {
	p.mu.Lock()
	if p.nowPlaying == nil {
		p.mu.Unlock()
		return ErrNotPlaying
	}
	p.stats.Skips++
	p.mu.Unlock()
	return p.sink.Stop()
}

// Stop clears the queue, ends the consumption loop, stops the sink and
// disconnects it. Only the first call has an effect; concurrent callers wait
// for it and get the same result.
func (p *Player) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.nowPlaying = nil
		p.looped = nil
		p.clearing = false
		cancel := p.cancel
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		p.queue.Clear()

		var errs []error
		if err := p.sink.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sink: %w", err))
		}
		if err := p.sink.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect sink: %w", err))
		}
		p.stopErr = errors.Join(errs...)
		p.logger.Debug("Player stopped")
	})
	return p.stopErr
}

// Wait blocks until the consumption loop has exited or ctx is done.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearQueue drops every queued and looped track. The current track keeps
// playing but is not looped once it finishes.
func (p *Player) ClearQueue() {
	p.mu.Lock()
	p.looped = nil
	if p.nowPlaying != nil {
		p.clearing = true
	}
	p.mu.Unlock()

	p.queue.Clear()
}

// QueueInfo returns the current track and the titles of everything after it.
// Looped tracks are listed last while looping is enabled.
func (p *Player) QueueInfo() Info {
	upcoming := p.queue.Info()

	p.mu.Lock()
	defer p.mu.Unlock()

	var info Info
	if p.nowPlaying != nil {
		t := *p.nowPlaying
		info.NowPlaying = &t
	}
	if p.loop {
		for _, t := range p.looped {
			upcoming = append(upcoming, t.Title)
		}
	}
	info.Upcoming = upcoming
	return info
}

// QueueLength counts the upcoming tracks, including looped ones while
// looping is enabled.
func (p *Player) QueueLength() int {
	n := p.queue.Len()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loop {
		n += len(p.looped)
	}
	return n
}

// Loop reports whether looping is enabled.
func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// SetLoop enables or disables looping. Disabling drops the tracks collected
// so far so they are never replayed.
func (p *Player) SetLoop(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLoopLocked(enabled)
}

// ToggleLoop flips looping and returns the new state.
func (p *Player) ToggleLoop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLoopLocked(!p.loop)
	return p.loop
}

func (p *Player) setLoopLocked(enabled bool) {
	p.loop = enabled
	if !enabled {
		p.looped = nil
	}
}

// NowPlaying returns the current track.
func (p *Player) NowPlaying() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nowPlaying == nil {
		return track.Track{}, false
	}
	return *p.nowPlaying, true
}

// Shuffle shuffles the queue. Looped tracks keep their order.
func (p *Player) Shuffle() {
	p.queue.Shuffle()
}

// Processing reports whether the consumption loop is running.
func (p *Player) Processing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing
}

// Idle reports whether nothing is playing and nothing is queued.
func (p *Player) Idle() bool {
	if _, ok := p.NowPlaying(); ok {
		return false
	}
	return p.QueueLength() == 0
}

// Stopped reports whether Stop has been called.
func (p *Player) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// GetStats returns playback statistics.
func (p *Player) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// run is the consumption loop.
func (p *Player) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		t, ok := p.fetch(ctx)
		if !ok {
			return
		}
		if !p.play(ctx, t) {
			p.exit()
			return
		}
	}
}

// fetch returns the next track to play. It returns false once the loop
// should end, after clearing the processing flag.
func (p *Player) fetch(ctx context.Context) (track.Track, bool) {
	for {
		t, err := p.queue.Next(ctx)
		if err == nil {
			return t, true
		}
		if ctx.Err() != nil {
			p.exit()
			return track.Track{}, false
		}
		if !errors.Is(err, queue.ErrEndOfQueue) {
			p.logger.Warn("Queue failed", "err", err)
		}

		p.mu.Lock()
		if p.loop && len(p.looped) > 0 {
			t := p.looped[0]
			p.looped[0] = track.Track{}
			p.looped = p.looped[1:]
			p.stats.Replays++
			p.mu.Unlock()

			if t, ok := p.refresh(ctx, t); ok {
				return t, true
			}
			continue
		}
		// A Play may have queued a request after Next gave up. Its caller
		// saw processing set, so this loop has to pick it up.
		if p.queue.Len() > 0 || p.queue.Active() {
			p.mu.Unlock()
			continue
		}
		p.processing = false
		p.cancel = nil
		p.mu.Unlock()

		p.logger.Debug("Consumption loop idle")
		return track.Track{}, false
	}
}

func (p *Player) exit() {
	p.mu.Lock()
	p.processing = false
	p.cancel = nil
	p.nowPlaying = nil
	p.mu.Unlock()
}

// refresh renews an expired looped track. It returns false when the track
// cannot be played anymore.
func (p *Player) refresh(ctx context.Context, t track.Track) (track.Track, bool) {
	if p.refresher == nil || !t.Expired(p.now()) {
		return t, true
	}

	fresh, err := p.refresher.Resolve(ctx, t.URL)
	if err != nil {
		p.logger.Warn("Dropping expired looped track", "title", t.Title, "err", err)
		return track.Track{}, false
	}
	p.mu.Lock()
	p.stats.Refreshes++
	p.mu.Unlock()
	p.logger.Debug("Refreshed looped track", "title", fresh.Title)
	return fresh, true
}

// play plays t and waits for it to finish. It returns false when the loop
// was cancelled.
func (p *Player) play(ctx context.Context, t track.Track) bool {
	finished := make(chan error, 1)

	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	current := t
	p.nowPlaying = &current
	err := p.sink.Play(t.StreamURL, func(err error) {
		finished <- err
	})
	if err != nil {
		p.nowPlaying = nil
		p.stats.PlayErrors++
		p.mu.Unlock()
		p.logger.Warn("Could not start track", "title", t.Title, "err", err)
		return true
	}
	p.stats.LastActivity = p.now()
	p.mu.Unlock()

	p.logger.Info("Playing", "title", t.Title, "duration", t.Duration)

	select {
	case err = <-finished:
	case <-ctx.Done():
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nowPlaying = nil
	p.stats.TracksPlayed++
	p.stats.LastActivity = p.now()
	if err != nil {
		p.stats.PlayErrors++
		p.logger.Warn("Track ended with error", "title", t.Title, "err", err)
	}
	switch {
	case p.clearing:
		p.clearing = false
	case p.loop && !p.stopped:
		p.looped = append(p.looped, t)
	}
	return true
}

package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/resolver"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
)

var (
	// ErrEndOfQueue is returned by Next when nothing more will become ready
	ErrEndOfQueue = errors.New("end of queue")

	// ErrQueueClosed is returned when requests are added to a closed queue
	ErrQueueClosed = errors.New("queue is closed")
)

// SongQueue resolves requests in the background and buffers the resulting
// tracks until the player asks for them.
//
// At most one resolution worker runs at a time. It processes pending requests
// strictly in FIFO order, so tracks become ready in submission order.
type SongQueue struct {
	resolver resolver.Resolver
	expander resolver.Expander
	logger   *log.Logger

	// Synchronization
	mu sync.Mutex

	// changed is closed and replaced whenever a track becomes ready or the
	// worker exits, waking every Next caller.
	changed chan struct{}

	ready     []track.Track
	resolving *track.Request
	pending   []track.Request

	// Worker state. cancel is non-nil while a worker is active and generation
	// identifies it, so results of a cancelled worker are discarded.
	cancel     context.CancelFunc
	generation uint64
	workers    sync.WaitGroup

	closed bool
	stats  Stats
}

// Stats tracks queue activity
type Stats struct {
	TotalAdded     int64
	TotalResolved  int64
	TotalFailed    int64
	TotalPlaylists int64
	TotalCleared   int64
	PeakSize       int
	LastAdd        time.Time
	LastNext       time.Time
	AverageResolve time.Duration
}

// Option configures a SongQueue.
type Option func(*SongQueue)

// WithExpander sets the playlist expander. By default the resolver is used
// when it implements resolver.Expander.
func WithExpander(e resolver.Expander) Option {
	return func(q *SongQueue) {
		q.expander = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(q *SongQueue) {
		q.logger = l
	}
}

// New creates an empty queue resolving requests with res.
func New(res resolver.Resolver, opts ...Option) *SongQueue {
	q := &SongQueue{
		resolver: res,
		changed:  make(chan struct{}),
		logger:   log.WithPrefix("queue"),
	}
	if e, ok := res.(resolver.Expander); ok {
		q.expander = e
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add appends req to the pending requests and starts the resolution worker
// if none is running. It never blocks on resolution.
func (q *SongQueue) Add(req track.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.pending = append(q.pending, req)
	q.stats.TotalAdded++
	q.stats.LastAdd = time.Now()
	if n := q.lenLocked(); n > q.stats.PeakSize {
		q.stats.PeakSize = n
	}

	if q.cancel == nil {
		q.startWorkerLocked()
	}
	return nil
}

// Next removes and returns the oldest ready track. If none is ready it waits
// while the worker is still resolving. ErrEndOfQueue is returned as soon as
// the ready buffer is empty and no worker is active.
func (q *SongQueue) Next(ctx context.Context) (track.Track, error) {
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			t := q.ready[0]
			q.ready[0] = track.Track{}
			q.ready = q.ready[1:]
			q.stats.LastNext = time.Now()
			q.mu.Unlock()
			return t, nil
		}
		if q.cancel == nil {
			q.mu.Unlock()
			return track.Track{}, ErrEndOfQueue
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return track.Track{}, ctx.Err()
		}
	}
}

// Clear cancels the worker and drops every pending and ready item. Callers
// waiting in Next are released with ErrEndOfQueue.
func (q *SongQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *SongQueue) clearLocked() {
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.generation++
	q.stats.TotalCleared += int64(q.lenLocked())
	q.ready = nil
	q.pending = nil
	q.resolving = nil
	q.broadcastLocked()
}

// Info returns the display titles of the ready tracks, the request being
// resolved and the pending requests, in playback order.
func (q *SongQueue) Info() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	titles := make([]string, 0, q.lenLocked())
	for _, t := range q.ready {
		titles = append(titles, t.Title)
	}
	if q.resolving != nil {
		titles = append(titles, q.resolving.DisplayTitle())
	}
	for _, r := range q.pending {
		titles = append(titles, r.DisplayTitle())
	}
	return titles
}

// Shuffle randomizes the ready tracks and the pending requests. The two are
// shuffled independently and never interleaved.
func (q *SongQueue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.ready), func(i, j int) {
		q.ready[i], q.ready[j] = q.ready[j], q.ready[i]
	})
	rand.Shuffle(len(q.pending), func(i, j int) {
		q.pending[i], q.pending[j] = q.pending[j], q.pending[i]
	})
}

// Len returns the number of ready, resolving and pending items.
func (q *SongQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Active reports whether a resolution worker is running.
func (q *SongQueue) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancel != nil
}

// GetStats returns queue statistics.
func (q *SongQueue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close clears the queue, rejects further requests and waits for the worker
// to return.
func (q *SongQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.clearLocked()
	q.mu.Unlock()

	q.workers.Wait()
	return nil
}

func (q *SongQueue) lenLocked() int {
	n := len(q.ready) + len(q.pending)
	if q.resolving != nil {
		n++
	}
	return n
}

func (q *SongQueue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *SongQueue) startWorkerLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.generation++
	q.workers.Add(1)
	go q.work(ctx, q.generation)
}

// work is the resolution worker. It exits when nothing is pending or when
// its generation is superseded by Clear.
func (q *SongQueue) work(ctx context.Context, gen uint64) {
	defer q.workers.Done()

	for {
		q.mu.Lock()
		if q.generation != gen {
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.cancel()
			q.cancel = nil
			q.resolving = nil
			q.broadcastLocked()
			q.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending[0] = track.Request{}
		q.pending = q.pending[1:]
		q.resolving = &req
		q.mu.Unlock()

		start := time.Now()
		t, err := q.resolver.Resolve(ctx, req.Query)
		switch {
		case err == nil:
			q.settle(gen, req, t, time.Since(start))
		case ctx.Err() != nil:
			q.logger.Debug("Resolution cancelled", "query", req.Query)
			return
		default:
			if h, ok := track.PlaylistOf(err); ok {
				q.expand(ctx, gen, req, h)
			} else {
				q.fail(gen, req, err)
			}
		}
	}
}

func (q *SongQueue) settle(gen uint64, req track.Request, t track.Track, took time.Duration) {
	q.mu.Lock()
	if q.generation != gen {
		q.mu.Unlock()
		return
	}
	q.resolving = nil
	q.ready = append(q.ready, t)
	n := q.lenLocked()

	q.stats.TotalResolved++
	if q.stats.AverageResolve == 0 {
		q.stats.AverageResolve = took
	} else {
		q.stats.AverageResolve = (q.stats.AverageResolve*9 + took) / 10
	}

	q.broadcastLocked()
	q.mu.Unlock()

	q.logger.Debug("Track ready", "title", t.Title, "took", took)
	req.Report(track.Outcome{Track: &t, QueueLength: n})
}

func (q *SongQueue) fail(gen uint64, req track.Request, err error) {
	q.mu.Lock()
	if q.generation != gen {
		q.mu.Unlock()
		return
	}
	q.resolving = nil
	q.stats.TotalFailed++
	n := q.lenLocked()
	q.mu.Unlock()

	q.logger.Warn("Could not resolve query", "query", req.Query, "kind", track.KindOf(err), "err", err)
	req.Report(track.Outcome{Err: err, QueueLength: n})
}

// expand replaces a playlist request with one silent request per entry,
// inserted at the head of the pending requests in playlist order.
func (q *SongQueue) expand(ctx context.Context, gen uint64, req track.Request, h track.PlaylistHandle) {
	if q.expander == nil {
		q.fail(gen, req, track.NotFound(req.Query, errors.New("playlists are not supported")))
		return
	}

	p, err := q.expander.Expand(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		q.fail(gen, req, err)
		return
	}

	subs := p.Requests()
	for i := range subs {
		subs[i].Reporter = req.Reporter
	}

	q.mu.Lock()
	if q.generation != gen {
		q.mu.Unlock()
		return
	}
	q.resolving = nil
	q.pending = append(subs, q.pending...)
	q.stats.TotalPlaylists++
	n := q.lenLocked()
	if n > q.stats.PeakSize {
		q.stats.PeakSize = n
	}
	q.mu.Unlock()

	q.logger.Info("Expanded playlist", "title", p.Title, "entries", len(subs))
	req.Report(track.Outcome{Playlist: &p, QueueLength: n})
}

package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager owns a TrackCache together with its snapshot file. It restores the
// snapshot on creation, prunes expired entries on a timer and saves the
// snapshot on every prune and on Close.
type Manager struct {
	cache  *TrackCache
	config Config

	// Cleanup goroutine control
	cleanupStop   chan struct{}
	cleanupTicker *time.Ticker
	cleanupWg     sync.WaitGroup
	closeOnce     sync.Once

	mu    sync.Mutex
	stats struct {
		CleanupRuns int64
		Pruned      int64
		LastCleanup time.Time
	}
}

// NewManager creates a track cache from config and starts its cleanup routine.
func NewManager(config Config, opts ...Option) (*Manager, error) {
	c, err := New(config, opts...)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cache:       c,
		config:      config,
		cleanupStop: make(chan struct{}),
	}

	if config.SnapshotPath != "" {
		n, err := c.Load(config.SnapshotPath)
		if err != nil {
			// Non-fatal: start with an empty cache
			log.Warn("Could not load track cache snapshot", "path", config.SnapshotPath, "err", err)
		} else if n > 0 {
			log.Info("Restored track cache", "tracks", n)
		}
	}

	if config.PruneInterval > 0 {
		m.startCleanupRoutine()
	}
	return m, nil
}

// Cache returns the managed track cache.
func (m *Manager) Cache() *TrackCache {
	return m.cache
}

// Cleanup drops expired entries and saves the snapshot.
func (m *Manager) Cleanup() error {
	pruned := m.cache.Prune()

	m.mu.Lock()
	m.stats.CleanupRuns++
	m.stats.Pruned += int64(pruned)
	m.stats.LastCleanup = time.Now()
	m.mu.Unlock()

	if pruned > 0 {
		log.Debug("Pruned expired tracks", "count", pruned)
	}
	if m.config.SnapshotPath == "" {
		return nil
	}
	return m.cache.Save(m.config.SnapshotPath, m.config.CompressionLevel)
}

// Stats returns combined cache and cleanup statistics.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"cache":        m.cache.Stats(),
		"cleanup_runs": m.stats.CleanupRuns,
		"pruned":       m.stats.Pruned,
		"last_cleanup": m.stats.LastCleanup,
	}
}

// Close stops the cleanup routine and writes a final snapshot.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.cleanupTicker != nil {
			close(m.cleanupStop)
			m.cleanupWg.Wait()
			m.cleanupTicker.Stop()
		}
		if cerr := m.Cleanup(); cerr != nil {
			err = fmt.Errorf("failed to save track cache: %w", cerr)
		}
	})
	return err
}

// startCleanupRoutine starts the background cleanup goroutine.
func (m *Manager) startCleanupRoutine() {
	m.cleanupTicker = time.NewTicker(m.config.PruneInterval)
	m.cleanupWg.Add(1)

	go func() {
		defer m.cleanupWg.Done()

		for {
			select {
			case <-m.cleanupTicker.C:
				if err := m.Cleanup(); err != nil {
					log.Warn("Track cache cleanup failed", "err", err)
				}
			case <-m.cleanupStop:
				return
			}
		}
	}()
}

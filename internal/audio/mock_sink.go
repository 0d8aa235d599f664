package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockSink implements Sink for testing purposes. Playback only ends when the
// test calls Finish or Stop, or after the auto finish delay.
type MockSink struct {
	// State management
	state atomic.Int32 // State

	// Test callbacks
	callbacks MockCallbacks

	// Synchronization
	mu       sync.Mutex
	playID   int64
	finished func(error)
	played   []string
	plays    chan string

	// Test configuration
	autoFinish time.Duration // Finish every play after this long, 0 = never
	playErr    error         // Returned by Play while set

	listeners atomic.Int32

	// Metrics for testing
	playCount       atomic.Int64
	pauseCount      atomic.Int64
	resumeCount     atomic.Int64
	stopCount       atomic.Int64
	disconnectCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay       func(src string)
	OnPause      func()
	OnResume     func()
	OnStop       func()
	OnDisconnect func()
}

// NewMockSink creates a mock sink with one listener.
func NewMockSink(callbacks MockCallbacks) *MockSink {
	ms := &MockSink{
		callbacks: callbacks,
		plays:     make(chan string, 256),
	}
	ms.listeners.Store(1)
	return ms
}

// SetAutoFinish makes every following play end by itself after d.
func (ms *MockSink) SetAutoFinish(d time.Duration) {
	ms.mu.Lock()
	ms.autoFinish = d
	ms.mu.Unlock()
}

// SetPlayErr makes Play fail with err until it is reset to nil.
func (ms *MockSink) SetPlayErr(err error) {
	ms.mu.Lock()
	ms.playErr = err
	ms.mu.Unlock()
}

// Play implements Sink.
func (ms *MockSink) Play(src string, onFinished func(error)) error {
	ms.mu.Lock()

	switch State(ms.state.Load()) {
	case StateClosed:
		ms.mu.Unlock()
		return ErrSinkClosed
	case StatePlaying, StatePaused:
		ms.mu.Unlock()
		return ErrBusy
	}
	if ms.playErr != nil {
		err := ms.playErr
		ms.mu.Unlock()
		return err
	}

	ms.playID++
	id := ms.playID
	ms.finished = onFinished
	ms.played = append(ms.played, src)
	ms.state.Store(int32(StatePlaying))
	ms.playCount.Add(1)
	auto := ms.autoFinish
	ms.mu.Unlock()

	select {
	case ms.plays <- src:
	default:
	}
	if ms.callbacks.OnPlay != nil {
		ms.callbacks.OnPlay(src)
	}
	if auto > 0 {
		time.AfterFunc(auto, func() { ms.finish(id, nil) })
	}
	return nil
}

// Finish completes the outstanding play with err. It reports whether a play
// was outstanding.
func (ms *MockSink) Finish(err error) bool {
	ms.mu.Lock()
	id := ms.playID
	ms.mu.Unlock()
	return ms.finish(id, err)
}

func (ms *MockSink) finish(id int64, err error) bool {
	ms.mu.Lock()
	if ms.finished == nil || id != ms.playID {
		ms.mu.Unlock()
		return false
	}
	fn := ms.finished
	ms.finished = nil
	if State(ms.state.Load()) != StateClosed {
		ms.state.Store(int32(StateIdle))
	}
	ms.mu.Unlock()

	fn(err)
	return true
}

// Pause implements Sink.
func (ms *MockSink) Pause() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if st := State(ms.state.Load()); st != StatePlaying {
		return fmt.Errorf("cannot pause: sink is %s", st)
	}
	ms.state.Store(int32(StatePaused))
	ms.pauseCount.Add(1)
	if ms.callbacks.OnPause != nil {
		ms.callbacks.OnPause()
	}
	return nil
}

// Resume implements Sink.
func (ms *MockSink) Resume() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if st := State(ms.state.Load()); st != StatePaused {
		return fmt.Errorf("cannot resume: sink is %s", st)
	}
	ms.state.Store(int32(StatePlaying))
	ms.resumeCount.Add(1)
	if ms.callbacks.OnResume != nil {
		ms.callbacks.OnResume()
	}
	return nil
}

// Stop implements Sink.
func (ms *MockSink) Stop() error {
	ms.stopCount.Add(1)
	if ms.callbacks.OnStop != nil {
		ms.callbacks.OnStop()
	}
	ms.Finish(nil)
	return nil
}

// Disconnect implements Sink.
func (ms *MockSink) Disconnect(ctx context.Context) error {
	ms.disconnectCount.Add(1)
	ms.Finish(nil)
	ms.state.Store(int32(StateClosed))
	if ms.callbacks.OnDisconnect != nil {
		ms.callbacks.OnDisconnect()
	}
	return nil
}

// Listeners implements ListenerCounter.
func (ms *MockSink) Listeners() int {
	return int(ms.listeners.Load())
}

// SetListeners sets the value reported by Listeners.
func (ms *MockSink) SetListeners(n int) {
	ms.listeners.Store(int32(n))
}

// WaitForPlay returns the source of the next Play call.
func (ms *MockSink) WaitForPlay(timeout time.Duration) (string, error) {
	select {
	case src := <-ms.plays:
		return src, nil
	case <-time.After(timeout):
		return "", errors.New("timed out waiting for play")
	}
}

// Played returns every source played so far.
func (ms *MockSink) Played() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, len(ms.played))
	copy(out, ms.played)
	return out
}

// GetState returns the current sink state.
func (ms *MockSink) GetState() State {
	return State(ms.state.Load())
}

// IsPlaying reports whether a play is outstanding and not paused.
func (ms *MockSink) IsPlaying() bool {
	return ms.GetState() == StatePlaying
}

// GetStats returns call counters.
func (ms *MockSink) GetStats() map[string]int64 {
	return map[string]int64{
		"play_count":       ms.playCount.Load(),
		"pause_count":      ms.pauseCount.Load(),
		"resume_count":     ms.resumeCount.Load(),
		"stop_count":       ms.stopCount.Load(),
		"disconnect_count": ms.disconnectCount.Load(),
	}
}

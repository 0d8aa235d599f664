package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockSink_PlayFinish(t *testing.T) {
	var played atomic.Int32
	sink := NewMockSink(MockCallbacks{OnPlay: func(string) { played.Add(1) }})

	var calls []error
	if err := sink.Play("a", func(err error) { calls = append(calls, err) }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !sink.IsPlaying() {
		t.Error("Sink should be playing after Play()")
	}
	if err := sink.Play("b", func(error) {}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for overlapping play, got %v", err)
	}

	boom := errors.New("stream broke")
	if !sink.Finish(boom) {
		t.Fatal("Finish should complete the outstanding play")
	}
	if sink.Finish(nil) {
		t.Error("Second Finish should be a no-op")
	}
	if len(calls) != 1 || !errors.Is(calls[0], boom) {
		t.Errorf("onFinished calls = %v", calls)
	}
	if sink.GetState() != StateIdle {
		t.Errorf("State should be idle, got %s", sink.GetState())
	}
	if played.Load() != 1 {
		t.Errorf("OnPlay called %d times", played.Load())
	}
}

func TestMockSink_PauseResume(t *testing.T) {
	sink := NewMockSink(MockCallbacks{})

	if err := sink.Pause(); err == nil {
		t.Error("Pause should fail while idle")
	}

	sink.Play("a", func(error) {})
	if err := sink.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := sink.Pause(); err == nil {
		t.Error("Pause should fail while paused")
	}
	if err := sink.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := sink.Resume(); err == nil {
		t.Error("Resume should fail while playing")
	}

	stats := sink.GetStats()
	if stats["pause_count"] != 1 || stats["resume_count"] != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestMockSink_StopAndDisconnect(t *testing.T) {
	sink := NewMockSink(MockCallbacks{})

	finished := make(chan error, 1)
	sink.Play("a", func(err error) { finished <- err })
	sink.Stop()

	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("Stop should finish with nil, got %v", err)
		}
	default:
		t.Fatal("Stop did not finish the play")
	}

	if err := sink.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := sink.Play("b", func(error) {}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Expected ErrSinkClosed, got %v", err)
	}
}

func TestMockSink_AutoFinish(t *testing.T) {
	sink := NewMockSink(MockCallbacks{})
	sink.SetAutoFinish(5 * time.Millisecond)

	done := make(chan struct{})
	sink.Play("a", func(error) { close(done) })

	if src, err := sink.WaitForPlay(time.Second); err != nil || src != "a" {
		t.Errorf("WaitForPlay = %q, %v", src, err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Auto finish never fired")
	}
}

func TestMockSink_PlayErr(t *testing.T) {
	sink := NewMockSink(MockCallbacks{})
	boom := errors.New("no route")
	sink.SetPlayErr(boom)

	called := false
	if err := sink.Play("a", func(error) { called = true }); !errors.Is(err, boom) {
		t.Errorf("Expected configured error, got %v", err)
	}
	if called {
		t.Error("onFinished must not fire when Play fails")
	}
	if sink.GetState() != StateIdle {
		t.Errorf("Failed play should leave the sink idle, got %s", sink.GetState())
	}
}

package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/disgo/voice"
)

// fakeConn pulls frames from the provider like the disgo audio sender does
type fakeConn struct {
	mu       sync.Mutex
	provider voice.OpusFrameProvider
	speaking []voice.SpeakingFlags
	closed   atomic.Int32
}

func (c *fakeConn) SetOpusFrameProvider(p voice.OpusFrameProvider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
	if p == nil {
		return
	}
	go func() {
		for {
			if _, err := p.ProvideOpusFrame(); err != nil {
				return
			}
		}
	}()
}

func (c *fakeConn) SetSpeaking(_ context.Context, flags voice.SpeakingFlags) error {
	c.mu.Lock()
	c.speaking = append(c.speaking, flags)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(context.Context) { c.closed.Add(1) }

func requireBinary(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func waitFinished(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Playback never finished")
		return nil
	}
}

func TestVoiceSink_NaturalEnd(t *testing.T) {
	conn := &fakeConn{}
	sink := NewVoiceSink(conn, VoiceConfig{FFmpegPath: requireBinary(t, "true")})

	finished := make(chan error, 1)
	if err := sink.Play("https://example.com/a.webm", func(err error) { finished <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := waitFinished(t, finished); err != nil {
		t.Errorf("Clean exit should finish with nil, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for sink.GetState() != StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.GetState() != StateIdle {
		t.Errorf("Sink should be idle after playback, got %s", sink.GetState())
	}
}

func TestVoiceSink_FailedTranscode(t *testing.T) {
	conn := &fakeConn{}
	sink := NewVoiceSink(conn, VoiceConfig{FFmpegPath: requireBinary(t, "false")})

	finished := make(chan error, 1)
	if err := sink.Play("src", func(err error) { finished <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	err := waitFinished(t, finished)
	if err == nil || !strings.Contains(err.Error(), "ffmpeg exited") {
		t.Errorf("Expected ffmpeg exit error, got %v", err)
	}
}

func TestVoiceSink_StopAndDisconnect(t *testing.T) {
	requireBinary(t, "sleep")
	script := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755); err != nil {
		t.Fatalf("Failed to write fake ffmpeg: %v", err)
	}

	conn := &fakeConn{}
	sink := NewVoiceSink(conn, VoiceConfig{FFmpegPath: script})

	finished := make(chan error, 1)
	if err := sink.Play("src", func(err error) { finished <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := sink.Pause(); err != nil {
		t.Errorf("Pause failed: %v", err)
	}
	if sink.GetState() != StatePaused {
		t.Errorf("Expected paused state, got %s", sink.GetState())
	}
	sink.Stop()
	if err := waitFinished(t, finished); err != nil {
		t.Errorf("Stop should finish with nil, got %v", err)
	}

	sink.Disconnect(context.Background())
	sink.Disconnect(context.Background())
	if got := conn.closed.Load(); got != 1 {
		t.Errorf("Expected exactly one close, got %d", got)
	}
	if err := sink.Play("src", func(error) {}); err != ErrSinkClosed {
		t.Errorf("Expected ErrSinkClosed, got %v", err)
	}
}

func TestVoiceSink_MissingBinary(t *testing.T) {
	sink := NewVoiceSink(&fakeConn{}, VoiceConfig{FFmpegPath: "/nonexistent/ffmpeg"})

	called := false
	if err := sink.Play("src", func(error) { called = true }); err == nil {
		t.Fatal("Play should fail without ffmpeg")
	}
	if called {
		t.Error("onFinished must not fire when Play fails")
	}
	if sink.GetState() != StateIdle {
		t.Errorf("Sink should stay idle, got %s", sink.GetState())
	}
}

func TestVoiceSink_PauseRequiresPlayback(t *testing.T) {
	sink := NewVoiceSink(&fakeConn{}, VoiceConfig{Listeners: func() int { return 3 }})

	if err := sink.Pause(); err == nil {
		t.Error("Pause should fail while idle")
	}
	if err := sink.Resume(); err == nil {
		t.Error("Resume should fail while idle")
	}
	if got := sink.Listeners(); got != 3 {
		t.Errorf("Listeners = %d, want 3", got)
	}
}

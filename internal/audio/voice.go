package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disgoorg/disgo/voice"
)

// VoiceConn is the part of a disgo voice connection used by VoiceSink.
type VoiceConn interface {
	SetOpusFrameProvider(provider voice.OpusFrameProvider)
	SetSpeaking(ctx context.Context, flags voice.SpeakingFlags) error
	Close(ctx context.Context)
}

// VoiceConfig contains configuration for a VoiceSink.
type VoiceConfig struct {
	FFmpegPath string // Defaults to "ffmpeg" on PATH
	Bitrate    int    // Opus bitrate in kbit/s, defaults to 128

	// Listeners counts the people in the sink's channel. Optional.
	Listeners func() int
}

// VoiceSink streams audio into a Discord voice connection. Every Play spawns
// an ffmpeg process that transcodes the source to Ogg/Opus.
type VoiceSink struct {
	conn   VoiceConn
	config VoiceConfig
	logger *log.Logger

	// State management
	state atomic.Int32 // State

	mu      sync.Mutex
	current *playback

	disconnectOnce sync.Once
}

// playback is a single Play call
type playback struct {
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	provider *OggProvider
	stderr   *tailBuffer
	stopped  atomic.Bool
}

// NewVoiceSink creates a sink writing to conn.
func NewVoiceSink(conn VoiceConn, config VoiceConfig) *VoiceSink {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.Bitrate == 0 {
		config.Bitrate = 128
	}
	return &VoiceSink{
		conn:   conn,
		config: config,
		logger: log.WithPrefix("voice"),
	}
}

// ffmpegArgs builds the transcoding command line for src.
func (s *VoiceSink) ffmpegArgs(src string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", src,
		"-vn",
		"-map", "0:a",
		"-acodec", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", strconv.Itoa(s.config.Bitrate) + "k",
		"-f", "opus",
		"pipe:1",
	}
}

// Play implements Sink.
func (s *VoiceSink) Play(src string, onFinished func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch State(s.state.Load()) {
	case StateClosed:
		return ErrSinkClosed
	case StatePlaying, StatePaused:
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.config.FFmpegPath, s.ffmpegArgs(src)...)
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create ffmpeg pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	pb := &playback{
		cmd:      cmd,
		cancel:   cancel,
		provider: NewOggProvider(stdout),
		stderr:   stderr,
	}
	pb.provider.OnFinish = func(err error) {
		// Called from the voice sender goroutine, which must not block on
		// the connection.
		go s.finish(pb, err, onFinished)
	}

	s.current = pb
	s.state.Store(int32(StatePlaying))
	s.conn.SetOpusFrameProvider(pb.provider)
	if err := s.conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone); err != nil {
		s.logger.Debug("Could not set speaking", "err", err)
	}
	return nil
}

func (s *VoiceSink) finish(pb *playback, err error, onFinished func(error)) {
	if err != nil || pb.stopped.Load() {
		pb.cancel()
	}
	waitErr := pb.cmd.Wait()
	pb.cancel()

	s.mu.Lock()
	if s.current == pb {
		s.current = nil
		s.conn.SetOpusFrameProvider(nil)
		if err := s.conn.SetSpeaking(context.Background(), 0); err != nil {
			s.logger.Debug("Could not clear speaking", "err", err)
		}
		if State(s.state.Load()) != StateClosed {
			s.state.Store(int32(StateIdle))
		}
	}
	s.mu.Unlock()

	if pb.stopped.Load() {
		err = nil
	} else if err == nil && waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			err = fmt.Errorf("ffmpeg exited with %d: %s", exitErr.ExitCode(), pb.stderr.String())
		}
	}
	if err != nil {
		s.logger.Warn("Playback failed", "err", err)
	}
	onFinished(err)
}

// Pause implements Sink.
func (s *VoiceSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := State(s.state.Load()); st != StatePlaying {
		return fmt.Errorf("cannot pause: sink is %s", st)
	}
	s.current.provider.Pause()
	s.state.Store(int32(StatePaused))
	if err := s.conn.SetSpeaking(context.Background(), 0); err != nil {
		s.logger.Debug("Could not clear speaking", "err", err)
	}
	return nil
}

// Resume implements Sink.
func (s *VoiceSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := State(s.state.Load()); st != StatePaused {
		return fmt.Errorf("cannot resume: sink is %s", st)
	}
	s.current.provider.Resume()
	s.state.Store(int32(StatePlaying))
	if err := s.conn.SetSpeaking(context.Background(), voice.SpeakingFlagMicrophone); err != nil {
		s.logger.Debug("Could not set speaking", "err", err)
	}
	return nil
}

// Stop implements Sink.
func (s *VoiceSink) Stop() error {
	s.mu.Lock()
	pb := s.current
	s.mu.Unlock()

	if pb == nil {
		return nil
	}
	pb.stopped.Store(true)
	pb.provider.Close()
	pb.cancel()
	return nil
}

// Disconnect implements Sink.
func (s *VoiceSink) Disconnect(ctx context.Context) error {
	s.disconnectOnce.Do(func() {
		_ = s.Stop()
		s.state.Store(int32(StateClosed))
		s.conn.Close(ctx)
		s.logger.Debug("Disconnected from voice")
	})
	return nil
}

// Listeners implements ListenerCounter. Without a counter the sink assumes
// somebody is listening.
func (s *VoiceSink) Listeners() int {
	if s.config.Listeners == nil {
		return 1
	}
	return s.config.Listeners()
}

// GetState returns the current sink state.
func (s *VoiceSink) GetState() State {
	return State(s.state.Load())
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}

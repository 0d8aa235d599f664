package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KrystianJachna/DiscordMusicBot/internal/audio"
	"github.com/KrystianJachna/DiscordMusicBot/internal/resolver"
	"github.com/KrystianJachna/DiscordMusicBot/internal/session"
	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
	"github.com/disgoorg/snowflake/v2"
)

// brokenSink fails to disconnect
type brokenSink struct {
	*audio.MockSink
}

func (s brokenSink) Disconnect(ctx context.Context) error {
	_ = s.MockSink.Disconnect(ctx)
	return errors.New("voice gateway gone")
}

func TestBot_DestroySessionLogsFailure(t *testing.T) {
	res := resolver.Func(func(ctx context.Context, q string) (track.Track, error) {
		return track.Track{Title: q, URL: q, StreamURL: q}, nil
	})
	reg := session.NewRegistry(res, session.DefaultConfig())
	t.Cleanup(func() { reg.Close(context.Background()) })

	var buf bytes.Buffer
	b := &Bot{registry: reg, logger: log.New(&buf)}

	guild := snowflake.ID(42)
	_, err := reg.GetOrCreate(context.Background(), guild, func(context.Context) (audio.Sink, error) {
		return brokenSink{audio.NewMockSink(audio.MockCallbacks{})}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	b.destroySession(guild)

	if reg.Len() != 0 {
		t.Errorf("Expected no sessions, got %d", reg.Len())
	}
	out := buf.String()
	if !strings.Contains(out, "Session did not stop cleanly") || !strings.Contains(out, "voice gateway gone") {
		t.Errorf("Expected the disconnect failure to be logged, got %q", out)
	}
}

package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// oggPage builds a minimal Ogg page holding packets. The CRC is not checked
// by the provider and left empty.
func oggPage(packets ...[]byte) []byte {
	var segs []byte
	var body []byte
	for _, p := range packets {
		n := len(p)
		for n >= 255 {
			segs = append(segs, 255)
			n -= 255
		}
		segs = append(segs, byte(n))
		body = append(body, p...)
	}

	header := make([]byte, 27)
	copy(header, "OggS")
	header[26] = byte(len(segs))

	page := append(header, segs...)
	return append(page, body...)
}

func readAll(t *testing.T, p *OggProvider) [][]byte {
	t.Helper()
	var frames [][]byte
	for i := 0; i < 100; i++ {
		f, err := p.ProvideOpusFrame()
		if err == io.EOF {
			return frames
		}
		if err != nil {
			t.Fatalf("ProvideOpusFrame failed: %v", err)
		}
		frames = append(frames, f)
	}
	t.Fatal("Provider never reached EOF")
	return nil
}

func TestOggProvider_Frames(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 600)

	var stream bytes.Buffer
	stream.Write(oggPage([]byte("OpusHead\x01\x02")))
	stream.Write(oggPage([]byte("OpusTags\x00")))
	stream.Write([]byte("junk"))
	stream.Write(oggPage([]byte{1, 2, 3}, big, []byte{4}))
	stream.Write(oggPage([]byte{5}))

	var finished []error
	p := NewOggProvider(&stream)
	p.OnFinish = func(err error) { finished = append(finished, err) }

	frames := readAll(t, p)
	if len(frames) != 4 {
		t.Fatalf("Expected 4 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{1, 2, 3}) {
		t.Errorf("Frame 0 = %v", frames[0])
	}
	if !bytes.Equal(frames[1], big) {
		t.Errorf("Frame 1 spanning segments has length %d, want %d", len(frames[1]), len(big))
	}
	if !bytes.Equal(frames[3], []byte{5}) {
		t.Errorf("Frame 3 = %v", frames[3])
	}

	// Further calls keep returning EOF without finishing twice.
	if _, err := p.ProvideOpusFrame(); err != io.EOF {
		t.Errorf("Expected EOF after end of stream, got %v", err)
	}
	p.Close()
	if len(finished) != 1 || finished[0] != nil {
		t.Errorf("OnFinish should fire once with nil, got %v", finished)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestOggProvider_ReadError(t *testing.T) {
	boom := errors.New("pipe broken")
	var got error
	p := NewOggProvider(failingReader{boom})
	p.OnFinish = func(err error) { got = err }

	if _, err := p.ProvideOpusFrame(); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
	if !errors.Is(got, boom) {
		t.Errorf("OnFinish should receive the read error, got %v", got)
	}
}

func TestOggProvider_PauseBlocksUntilResume(t *testing.T) {
	p := NewOggProvider(bytes.NewReader(oggPage([]byte{9})))
	p.Pause()
	if !p.Paused() {
		t.Fatal("Provider should report paused")
	}

	got := make(chan []byte, 1)
	go func() {
		f, _ := p.ProvideOpusFrame()
		got <- f
	}()

	select {
	case <-got:
		t.Fatal("Frame delivered while paused")
	case <-time.After(30 * time.Millisecond):
	}

	p.Resume()
	p.Resume() // idempotent

	select {
	case f := <-got:
		if !bytes.Equal(f, []byte{9}) {
			t.Errorf("Unexpected frame %v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("Frame not delivered after resume")
	}
}

func TestOggProvider_CloseUnblocksPaused(t *testing.T) {
	p := NewOggProvider(bytes.NewReader(nil))
	finished := make(chan error, 1)
	p.OnFinish = func(err error) { finished <- err }
	p.Pause()

	done := make(chan error, 1)
	go func() {
		_, err := p.ProvideOpusFrame()
		done <- err
	}()

	p.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("Expected EOF after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock a paused provider")
	}
	if err := <-finished; err != nil {
		t.Errorf("Close should finish with nil, got %v", err)
	}
}

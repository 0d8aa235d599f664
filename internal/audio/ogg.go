package audio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

var (
	oggCapture = []byte("OggS")
	opusHead   = []byte("OpusHead")
	opusTags   = []byte("OpusTags")
)

// OggProvider reads Opus packets out of an Ogg stream and hands them to a
// voice connection one frame at a time. It implements voice.OpusFrameProvider.
type OggProvider struct {
	reader *bufio.Reader
	header []byte
	segBuf []byte
	packet bytes.Buffer
	queue  [][]byte

	// OnFinish is called once when the stream ends or the provider is
	// closed. The error is nil for a clean end of stream.
	OnFinish func(error)
	once     sync.Once

	// playing is closed while frames flow and replaced while paused
	pauseMu sync.Mutex
	playing chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewOggProvider wraps r, typically the stdout of ffmpeg.
func NewOggProvider(r io.Reader) *OggProvider {
	playing := make(chan struct{})
	close(playing)
	return &OggProvider{
		reader:  bufio.NewReaderSize(r, 16384),
		header:  make([]byte, 27),
		segBuf:  make([]byte, 255),
		playing: playing,
		done:    make(chan struct{}),
	}
}

// Pause withholds frames until Resume.
func (p *OggProvider) Pause() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	select {
	case <-p.playing:
		p.playing = make(chan struct{})
	default:
	}
}

// Resume releases frames again.
func (p *OggProvider) Resume() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	select {
	case <-p.playing:
	default:
		close(p.playing)
	}
}

// Paused reports whether frames are withheld.
func (p *OggProvider) Paused() bool {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	select {
	case <-p.playing:
		return false
	default:
		return true
	}
}

// Close ends the stream early. OnFinish receives nil.
func (p *OggProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.finish(nil)
}

func (p *OggProvider) finish(err error) {
	p.once.Do(func() {
		if p.OnFinish != nil {
			p.OnFinish(err)
		}
	})
}

// ProvideOpusFrame returns the next Opus packet. It blocks while paused.
func (p *OggProvider) ProvideOpusFrame() ([]byte, error) {
	p.pauseMu.Lock()
	playing := p.playing
	p.pauseMu.Unlock()

	select {
	case <-playing:
	case <-p.done:
		return nil, io.EOF
	}
	select {
	case <-p.done:
		return nil, io.EOF
	default:
	}

	if len(p.queue) > 0 {
		frame := p.queue[0]
		p.queue = p.queue[1:]
		return frame, nil
	}

	frame, err := p.readFrame()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			p.finish(nil)
		} else {
			p.finish(err)
		}
		return nil, io.EOF
	}
	return frame, nil
}

// readFrame scans pages until at least one audio packet is complete.
func (p *OggProvider) readFrame() ([]byte, error) {
	for {
		sig, err := p.reader.Peek(4)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(sig, oggCapture) {
			// Resync on garbage between pages.
			if _, err := p.reader.Discard(1); err != nil {
				return nil, err
			}
			continue
		}

		if _, err := io.ReadFull(p.reader, p.header); err != nil {
			return nil, err
		}

		segTable := p.segBuf[:int(p.header[26])]
		if _, err := io.ReadFull(p.reader, segTable); err != nil {
			return nil, err
		}

		for _, seg := range segTable {
			if _, err := io.CopyN(&p.packet, p.reader, int64(seg)); err != nil {
				return nil, err
			}
			// A segment shorter than 255 bytes terminates the packet.
			if seg == 255 {
				continue
			}

			frame := bytes.Clone(p.packet.Bytes())
			p.packet.Reset()
			if len(frame) == 0 || bytes.HasPrefix(frame, opusHead) || bytes.HasPrefix(frame, opusTags) {
				continue
			}
			p.queue = append(p.queue, frame)
		}

		if len(p.queue) > 0 {
			frame := p.queue[0]
			p.queue = p.queue[1:]
			return frame, nil
		}
	}
}

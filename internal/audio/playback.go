package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SpeakerSink plays PCM16LE mono audio on the default output device.
type SpeakerSink struct {
	player *oto.Player
	w      *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid playback sample rate %d", sampleRate)
	}
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		// Small buffer keeps conversational latency down.
		BufferSize: 100 * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("playback context init: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()
	return &SpeakerSink{player: player, w: pw}, nil
}

// Play queues audio for the output device. Writes after Close are discarded.
func (s *SpeakerSink) Play(pcm []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	_, err := s.w.Write(pcm)
	return err
}

func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.w.Close()
	return s.player.Close()
}

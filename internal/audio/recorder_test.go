package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

type nullSink struct {
	played int
	closed bool
}

func (s *nullSink) Play(pcm []byte) error {
	s.played += len(pcm)
	return nil
}

func (s *nullSink) Close() error {
	s.closed = true
	return nil
}

func TestRecordingSinkWritesWAVOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")
	next := &nullSink{}
	rec := NewRecordingSink(next, path, 8000)

	pcm := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00}
	if err := rec.Play(pcm[:4]); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := rec.Play(pcm[4:]); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !next.closed {
		t.Error("wrapped sink not closed")
	}
	if next.played != len(pcm) {
		t.Errorf("wrapped sink saw %d bytes, want %d", next.played, len(pcm))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading recording: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatalf("not a WAV container: % x", data[:12])
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 8000 {
		t.Errorf("sample rate = %d, want 8000", got)
	}
	if !bytes.Equal(data[len(data)-len(pcm):], pcm) {
		t.Error("PCM payload not preserved")
	}

	// Second close is a no-op.
	if err := rec.Close(); err != nil {
		t.Fatalf("repeated Close: %v", err)
	}
}

func TestRecordingSinkEmptySessionWritesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	rec := NewRecordingSink(&nullSink{}, path, 8000)

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("empty recording produced a file")
	}
}

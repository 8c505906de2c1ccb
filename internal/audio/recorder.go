package audio

import "sync"

// Sink mirrors the transport-facing playback contract so the recorder can
// wrap any downstream sink.
type Sink interface {
	Play(pcm []byte) error
	Close() error
}

// RecordingSink tees playback audio into an in-memory buffer and writes it as
// a WAV file when the session ends. Playback continues even if the recording
// write fails.
type RecordingSink struct {
	next       Sink
	path       string
	sampleRate int

	mu     sync.Mutex
	pcm    []byte
	closed bool
}

func NewRecordingSink(next Sink, path string, sampleRate int) *RecordingSink {
	return &RecordingSink{next: next, path: path, sampleRate: sampleRate}
}

func (r *RecordingSink) Play(pcm []byte) error {
	r.mu.Lock()
	if !r.closed {
		r.pcm = append(r.pcm, pcm...)
	}
	r.mu.Unlock()
	return r.next.Play(pcm)
}

// Close flushes the recording and closes the wrapped sink. The wrapped sink
// is closed even when the file write fails; the write error wins.
func (r *RecordingSink) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pcm := r.pcm
	r.mu.Unlock()

	var writeErr error
	if len(pcm) > 0 {
		writeErr = WriteWAVFile(r.path, pcm, r.sampleRate)
	}
	closeErr := r.next.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

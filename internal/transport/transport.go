package transport

import (
	"context"
	"fmt"
)

// Reason classifies negotiation failures.
type Reason string

const (
	// ReasonPermissionDenied: the local capture device could not be acquired.
	// Raised before any network activity.
	ReasonPermissionDenied Reason = "permission_denied"
	// ReasonNetwork: connection setup failed locally or in transit.
	ReasonNetwork Reason = "network"
	// ReasonRemoteRejected: the remote endpoint refused the offer.
	ReasonRemoteRejected Reason = "remote_rejected"
)

// Error is the negotiation failure type. Status carries the HTTP status for
// remote rejections so callers can log it.
type Error struct {
	Reason Reason
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport %s (status %d): %v", e.Reason, e.Status, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transport %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// AudioSource supplies local capture audio as raw PCM16LE mono frames.
// ReadFrame blocks until a frame is available and returns io.EOF once closed.
type AudioSource interface {
	ReadFrame() ([]byte, error)
	SampleRate() int
	Close() error
}

// AudioSink receives remote playback audio as raw PCM16LE mono. Implementations
// must tolerate writes after Close.
type AudioSink interface {
	Play(pcm []byte) error
	Close() error
}

// OpenSourceFunc acquires the capture device at the given sample rate. An
// error here maps to ReasonPermissionDenied.
type OpenSourceFunc func(sampleRate int) (AudioSource, error)

// Handle owns one established media connection plus its ordered message
// channel. At most one Handle is live per process; Close tears down both
// sub-resources unconditionally and is safe to call repeatedly.
type Handle interface {
	// Ready is closed once the message channel is open for sending.
	Ready() <-chan struct{}
	// Events yields inbound data-channel messages in arrival order. The
	// channel is closed when the remote side closes or Close is called.
	Events() <-chan []byte
	// Send JSON-encodes v onto the message channel.
	Send(v any) error
	Close() error
}

// Negotiator establishes the session transport with a short-lived token.
// Negotiation is one-shot: any failure invalidates the whole attempt and the
// caller's recovery is teardown plus a fresh start.
type Negotiator interface {
	Negotiate(ctx context.Context, token string) (Handle, error)
}

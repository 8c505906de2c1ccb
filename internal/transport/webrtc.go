package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/tallevi/parla/internal/audio"
)

const (
	dataChannelLabel = "realtime-channel"
	pcmuSampleRate   = 8000
)

// WebRTCConfig configures the peer-to-peer negotiator.
type WebRTCConfig struct {
	Region     string
	Deployment string
	// BaseURL overrides the negotiation endpoint; mainly for tests. When empty
	// it is derived from Region.
	BaseURL    string
	OpenSource OpenSourceFunc
	Sink       AudioSink
	HTTPClient *http.Client
}

// WebRTCNegotiator establishes the media connection and data channel against
// the remote realtime endpoint via an SDP offer/answer exchange.
type WebRTCNegotiator struct {
	cfg WebRTCConfig
}

func NewWebRTCNegotiator(cfg WebRTCConfig) *WebRTCNegotiator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebRTCNegotiator{cfg: cfg}
}

func (n *WebRTCNegotiator) endpointURL() string {
	if n.cfg.BaseURL != "" {
		return fmt.Sprintf("%s?model=%s", strings.TrimRight(n.cfg.BaseURL, "/"), n.cfg.Deployment)
	}
	return fmt.Sprintf("https://%s.realtimeapi-preview.ai.azure.com/v1/realtimertc?model=%s",
		n.cfg.Region, n.cfg.Deployment)
}

// Negotiate runs the strict one-shot setup sequence: capture, peer connection,
// data channel, offer, SDP exchange, answer. Any step's failure tears down the
// partial attempt; there is no step-level retry.
func (n *WebRTCNegotiator) Negotiate(ctx context.Context, token string) (Handle, error) {
	// Capture comes first so a denied device aborts before any network I/O.
	src, err := n.cfg.OpenSource(pcmuSampleRate)
	if err != nil {
		return nil, &Error{Reason: ReasonPermissionDenied, Err: err}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		_ = src.Close()
		return nil, &Error{Reason: ReasonNetwork, Err: err}
	}

	h := &webrtcHandle{
		pc:     pc,
		src:    src,
		sink:   n.cfg.Sink,
		ready:  make(chan struct{}),
		events: make(chan []byte, 256),
	}

	fail := func(reason Reason, status int, err error) (Handle, error) {
		_ = h.Close()
		return nil, &Error{Reason: reason, Status: status, Err: err}
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: pcmuSampleRate, Channels: 1},
		"audio", "microphone")
	if err != nil {
		return fail(ReasonNetwork, 0, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(ReasonNetwork, 0, err)
	}
	h.track = track

	// The remote track can arrive any time after the peer connection exists,
	// including while negotiation is still in flight or after a racing stop.
	// A dead handle turns it into a no-op.
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go h.playRemote(remote)
	})

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return fail(ReasonNetwork, 0, err)
	}
	h.attachChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(ReasonNetwork, 0, err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(ReasonNetwork, 0, err)
	}
	// Vanilla ICE: wait for candidate gathering so the offer is complete.
	select {
	case <-gathered:
	case <-ctx.Done():
		return fail(ReasonNetwork, 0, ctx.Err())
	}

	answerSDP, status, err := n.exchangeSDP(ctx, token, pc.LocalDescription().SDP)
	if err != nil {
		if status != 0 {
			return fail(ReasonRemoteRejected, status, err)
		}
		return fail(ReasonNetwork, 0, err)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fail(ReasonRemoteRejected, 0, err)
	}

	return h, nil
}

// exchangeSDP posts the local offer as an opaque body and returns the remote
// answer. A non-2xx response reports the status for diagnostics.
func (n *WebRTCNegotiator) exchangeSDP(ctx context.Context, token, offerSDP string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpointURL(), strings.NewReader(offerSDP))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := n.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, fmt.Errorf("negotiation endpoint returned %d", resp.StatusCode)
	}
	return string(body), 0, nil
}

type webrtcHandle struct {
	pc    *webrtc.PeerConnection
	dc    *webrtc.DataChannel
	track *webrtc.TrackLocalStaticSample
	src   AudioSource
	sink  AudioSink

	ready  chan struct{}
	events chan []byte

	mu           sync.Mutex
	closed       bool
	readyOnce    sync.Once
	eventsClosed bool
}

func (h *webrtcHandle) attachChannel(dc *webrtc.DataChannel) {
	h.dc = dc
	dc.OnOpen(func() {
		h.readyOnce.Do(func() { close(h.ready) })
		go h.pumpMicrophone()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h.deliver(msg.Data)
	})
	dc.OnClose(func() {
		h.closeEvents()
	})
}

func (h *webrtcHandle) Ready() <-chan struct{} { return h.ready }
func (h *webrtcHandle) Events() <-chan []byte  { return h.events }

func (h *webrtcHandle) Send(v any) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return errors.New("transport closed")
	}
	if h.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("message channel not open")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.dc.SendText(string(raw))
}

// Close tears down channel, peer connection and audio endpoints in that order,
// tolerating resources that are already gone.
func (h *webrtcHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.dc != nil {
		_ = h.dc.Close()
	}
	if h.pc != nil {
		_ = h.pc.Close()
	}
	if h.src != nil {
		_ = h.src.Close()
	}
	if h.sink != nil {
		_ = h.sink.Close()
	}
	h.closeEvents()
	return nil
}

func (h *webrtcHandle) deliver(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eventsClosed {
		return
	}
	msg := append([]byte(nil), data...)
	select {
	case h.events <- msg:
	default:
		// Inbound queue saturated; the protocol is low-volume so this only
		// happens when the consumer is gone. Drop instead of blocking pion.
	}
}

func (h *webrtcHandle) closeEvents() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eventsClosed {
		return
	}
	h.eventsClosed = true
	close(h.events)
}

// pumpMicrophone feeds capture frames to the outbound media track as G.711.
func (h *webrtcHandle) pumpMicrophone() {
	rate := h.src.SampleRate()
	for {
		frame, err := h.src.ReadFrame()
		if err != nil {
			return
		}
		samples := len(frame) / 2
		if samples == 0 {
			continue
		}
		dur := time.Duration(samples) * time.Second / time.Duration(rate)
		sample := media.Sample{Data: audio.EncodeMuLaw(frame), Duration: dur}
		if err := h.track.WriteSample(sample); err != nil {
			return
		}
	}
}

// playRemote routes the remote media track to the playback sink.
func (h *webrtcHandle) playRemote(remote *webrtc.TrackRemote) {
	for {
		h.mu.Lock()
		closed := h.closed
		h.mu.Unlock()
		if closed || h.sink == nil {
			return
		}
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if err := h.sink.Play(audio.DecodeMuLaw(pkt.Payload)); err != nil {
			return
		}
	}
}

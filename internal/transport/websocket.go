package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tallevi/parla/internal/protocol"
)

const wsSampleRate = 24000

// WebSocketConfig configures the websocket fallback transport. It speaks the
// same event protocol as the data channel but carries audio in-band: the
// microphone as input_audio_buffer.append events and remote speech as
// response.audio.delta events consumed here.
type WebSocketConfig struct {
	// URL is the full realtime websocket endpoint, including api-version and
	// deployment query parameters.
	URL        string
	OpenSource OpenSourceFunc
	Sink       AudioSink
	Dialer     *websocket.Dialer
}

type WebSocketNegotiator struct {
	cfg WebSocketConfig
}

func NewWebSocketNegotiator(cfg WebSocketConfig) *WebSocketNegotiator {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &WebSocketNegotiator{cfg: cfg}
}

func (n *WebSocketNegotiator) Negotiate(ctx context.Context, token string) (Handle, error) {
	src, err := n.cfg.OpenSource(wsSampleRate)
	if err != nil {
		return nil, &Error{Reason: ReasonPermissionDenied, Err: err}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := n.cfg.Dialer.DialContext(ctx, n.cfg.URL, header)
	if err != nil {
		_ = src.Close()
		if resp != nil && resp.StatusCode != 0 && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &Error{Reason: ReasonRemoteRejected, Status: resp.StatusCode, Err: err}
		}
		return nil, &Error{Reason: ReasonNetwork, Err: err}
	}

	h := &wsHandle{
		conn:   conn,
		src:    src,
		sink:   n.cfg.Sink,
		ready:  make(chan struct{}),
		events: make(chan []byte, 256),
	}
	// The websocket is bidirectional as soon as the dial completes.
	close(h.ready)
	go h.readLoop()
	go h.pumpMicrophone()
	return h, nil
}

type wsHandle struct {
	conn *websocket.Conn
	src  AudioSource
	sink AudioSink

	ready  chan struct{}
	events chan []byte

	writeMu sync.Mutex

	mu           sync.Mutex
	closed       bool
	eventsClosed bool
}

func (h *wsHandle) Ready() <-chan struct{} { return h.ready }
func (h *wsHandle) Events() <-chan []byte  { return h.events }

func (h *wsHandle) Send(v any) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return errors.New("transport closed")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteMessage(websocket.TextMessage, raw)
}

func (h *wsHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	_ = h.conn.Close()
	_ = h.src.Close()
	if h.sink != nil {
		_ = h.sink.Close()
	}
	h.closeEvents()
	return nil
}

func (h *wsHandle) closeEvents() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eventsClosed {
		return
	}
	h.eventsClosed = true
	close(h.events)
}

func (h *wsHandle) readLoop() {
	defer h.closeEvents()
	for {
		msgType, data, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if h.playAudioDelta(data) {
			continue
		}

		h.mu.Lock()
		if h.eventsClosed {
			h.mu.Unlock()
			return
		}
		select {
		case h.events <- data:
		default:
			// Low-volume protocol; only a gone consumer can saturate this.
		}
		h.mu.Unlock()
	}
}

// playAudioDelta consumes in-band audio events so the message channel exposes
// only the protocol surface the router dispatches on.
func (h *wsHandle) playAudioDelta(data []byte) bool {
	var env struct {
		Type  string `json:"type"`
		Delta string `json:"delta"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type != "response.audio.delta" {
		return false
	}
	if h.sink == nil {
		return true
	}
	pcm, err := base64.StdEncoding.DecodeString(env.Delta)
	if err != nil || len(pcm) == 0 {
		return true
	}
	_ = h.sink.Play(pcm)
	return true
}

func (h *wsHandle) pumpMicrophone() {
	for {
		frame, err := h.src.ReadFrame()
		if err != nil {
			return
		}
		if len(frame) == 0 {
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(frame)
		if err := h.Send(protocol.NewInputAudioAppend(encoded)); err != nil {
			return
		}
	}
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// MockNegotiator is a scripted transport used in tests and when running the
// client without a realtime backend.
type MockNegotiator struct {
	mu         sync.Mutex
	handle     *MockHandle
	err        error
	negotiated int
	lastToken  string
}

func NewMockNegotiator(handle *MockHandle) *MockNegotiator {
	return &MockNegotiator{handle: handle}
}

// FailWith makes the next Negotiate call fail.
func (n *MockNegotiator) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *MockNegotiator) Negotiate(_ context.Context, token string) (Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.negotiated++
	n.lastToken = token
	if n.err != nil {
		return nil, n.err
	}
	return n.handle, nil
}

func (n *MockNegotiator) NegotiateCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.negotiated
}

func (n *MockNegotiator) LastToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastToken
}

// MockHandle scripts inbound events and records outbound sends.
type MockHandle struct {
	ready  chan struct{}
	events chan []byte

	mu           sync.Mutex
	sent         []json.RawMessage
	closed       bool
	eventsClosed bool
}

func NewMockHandle() *MockHandle {
	h := &MockHandle{
		ready:  make(chan struct{}),
		events: make(chan []byte, 64),
	}
	close(h.ready)
	return h
}

func (h *MockHandle) Ready() <-chan struct{} { return h.ready }
func (h *MockHandle) Events() <-chan []byte  { return h.events }

func (h *MockHandle) Send(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("transport closed")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.sent = append(h.sent, raw)
	return nil
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if !h.eventsClosed {
		h.eventsClosed = true
		close(h.events)
	}
	return nil
}

// EmitRaw delivers one raw inbound message.
func (h *MockHandle) EmitRaw(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eventsClosed {
		return
	}
	h.events <- append([]byte(nil), data...)
}

// Emit JSON-encodes v and delivers it as an inbound message.
func (h *MockHandle) Emit(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	h.EmitRaw(raw)
}

// CloseRemote simulates the remote side closing the message channel without a
// local stop.
func (h *MockHandle) CloseRemote() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.eventsClosed {
		return
	}
	h.eventsClosed = true
	close(h.events)
}

// Sent returns the outbound messages recorded so far.
func (h *MockHandle) Sent() []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]json.RawMessage, len(h.sent))
	copy(out, h.sent)
	return out
}

// Closed reports whether Close was called.
func (h *MockHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

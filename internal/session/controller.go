package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tallevi/parla/internal/broker"
	"github.com/tallevi/parla/internal/conversation"
	"github.com/tallevi/parla/internal/diag"
	"github.com/tallevi/parla/internal/observability"
	"github.com/tallevi/parla/internal/protocol"
	"github.com/tallevi/parla/internal/transport"
)

// ErrSessionActive is returned by Start while a session is live. A new session
// requires an explicit Stop first; Start never force-stops on its own.
var ErrSessionActive = errors.New("session already active")

// CredentialSource fetches one short-lived token per session.
type CredentialSource interface {
	CreateSession(ctx context.Context, voice, instructions string) (broker.Grant, error)
}

// Config wires the controller's collaborators.
type Config struct {
	Broker       CredentialSource
	Negotiator   transport.Negotiator
	Voice        string
	Instructions string
	Conversation *conversation.Log
	Diag         *diag.Logger
	Metrics      *observability.Metrics
	// OnState observes connection-state changes; optional.
	OnState StatusFunc
}

// Controller owns the session lifecycle: idle, connecting, active, ended,
// with error absorbing failed starts. It holds at most one live transport
// handle and is the only writer of ConnectionState besides the router.
type Controller struct {
	cfg    Config
	router *Router

	mu        sync.Mutex
	lifecycle Lifecycle
	state     ConnectionState
	handle    transport.Handle
	done      chan struct{}
}

func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg, lifecycle: LifecycleIdle, state: StateIdle}
	c.router = NewRouter(cfg.Conversation, cfg.Diag, cfg.Metrics, c.setState)
	return c
}

// Lifecycle reports the controller phase.
func (c *Controller) Lifecycle() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle
}

// State reports the presentation-facing connection state.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Model reports the remote-confirmed model identity once session.created
// has arrived.
func (c *Controller) Model() string { return c.router.Model() }

func (c *Controller) setState(state ConnectionState, text string) {
	c.mu.Lock()
	c.state = state
	fn := c.cfg.OnState
	c.mu.Unlock()
	if fn != nil {
		fn(state, text)
	}
}

// Start runs the session start sequence: token fetch, transport negotiation,
// initial session.update. Each step is awaited in order; any failure aborts
// the whole attempt, tears down partial resources and moves to the error
// state. No automatic retry.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.lifecycle == LifecycleConnecting || c.lifecycle == LifecycleActive {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.lifecycle = LifecycleConnecting
	c.mu.Unlock()

	// A restarted session begins from an empty transcript.
	c.cfg.Conversation.Reset()

	c.setState(StateConnecting, "Requesting ephemeral key...")
	c.cfg.Diag.Infof("requesting ephemeral key from broker")

	began := time.Now()
	grant, err := c.cfg.Broker.CreateSession(ctx, c.cfg.Voice, c.cfg.Instructions)
	if err != nil {
		c.cfg.Metrics.SessionEvents.WithLabelValues("credential_error").Inc()
		return c.failStart("credential", err)
	}
	c.cfg.Diag.Successf("ephemeral key received (session %s)", grant.SessionID)
	if grant.ExpiresAt > 0 {
		c.cfg.Diag.Infof("key expires at %s", time.Unix(grant.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}

	c.setState(StateConnecting, "Negotiating transport...")
	handle, err := c.cfg.Negotiator.Negotiate(ctx, grant.EphemeralKey)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) {
			c.cfg.Metrics.TransportErrors.WithLabelValues(string(terr.Reason)).Inc()
		}
		c.cfg.Metrics.SessionEvents.WithLabelValues("negotiation_error").Inc()
		return c.failStart("negotiation", err)
	}

	select {
	case <-handle.Ready():
	case <-ctx.Done():
		_ = handle.Close()
		c.cfg.Metrics.SessionEvents.WithLabelValues("negotiation_error").Inc()
		return c.failStart("negotiation", ctx.Err())
	}
	c.cfg.Metrics.ObserveNegotiationLatency(time.Since(began))
	c.cfg.Diag.Successf("transport established")

	// Instructions pass through to the wire verbatim; the channel must be
	// configured before the session counts as ready for conversation.
	if c.cfg.Instructions != "" {
		if err := handle.Send(protocol.NewSessionUpdate(c.cfg.Instructions)); err != nil {
			_ = handle.Close()
			c.cfg.Metrics.SessionEvents.WithLabelValues("negotiation_error").Inc()
			return c.failStart("negotiation", err)
		}
		c.cfg.Diag.Infof("sent session.update")
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.handle = handle
	c.lifecycle = LifecycleActive
	c.done = done
	c.mu.Unlock()

	c.cfg.Metrics.ActiveSessions.Set(1)
	c.cfg.Metrics.SessionEvents.WithLabelValues("started").Inc()
	c.setState(StateListening, "Connected - start speaking!")

	go c.consume(handle, done)
	return nil
}

// consume drains the inbound event stream. It exits when the stream closes,
// either because Stop tore the handle down or because the remote side went
// away; only the latter is reported as an unexpected disconnect.
func (c *Controller) consume(h transport.Handle, done chan struct{}) {
	defer close(done)
	for raw := range h.Events() {
		c.router.OnEvent(raw)
	}

	c.mu.Lock()
	remote := c.handle == h
	if remote {
		c.handle = nil
		c.lifecycle = LifecycleEnded
		c.done = nil
	}
	c.mu.Unlock()

	if remote {
		_ = h.Close()
		c.cfg.Metrics.ActiveSessions.Set(0)
		c.cfg.Metrics.SessionEvents.WithLabelValues("remote_close").Inc()
		c.cfg.Diag.Warningf("message channel closed by remote")
		c.setState(StateDisconnected, "Disconnected")
	}
}

// Stop tears the session down: message channel, peer connection, playback
// sink, in that order inside the handle. It is safe from any state, including
// before any session was ever started, and never reports an error.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.handle
	done := c.done
	c.handle = nil
	c.done = nil
	if h != nil {
		c.lifecycle = LifecycleEnded
	} else {
		c.lifecycle = LifecycleIdle
	}
	c.mu.Unlock()

	if h == nil {
		// Nothing live; degrade to a state reset.
		c.setState(StateIdle, "Ready")
		return
	}

	c.cfg.Diag.Warningf("stopping session")
	_ = h.Close()
	if done != nil {
		<-done
	}

	c.cfg.Metrics.ActiveSessions.Set(0)
	c.cfg.Metrics.SessionEvents.WithLabelValues("stopped").Inc()
	c.setState(StateDisconnected, "Session ended")
	c.cfg.Conversation.AppendSystem("Session ended")
	c.cfg.Diag.Successf("session stopped")
}

func (c *Controller) failStart(stage string, err error) error {
	c.mu.Lock()
	c.lifecycle = LifecycleError
	c.mu.Unlock()

	c.cfg.Diag.Errorf("%s failure: %v", stage, err)
	c.setState(StateError, "Failed to start session")
	c.cfg.Conversation.AppendSystem("Error: " + err.Error())
	return err
}

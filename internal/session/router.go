package session

import (
	"sync"

	"github.com/tallevi/parla/internal/conversation"
	"github.com/tallevi/parla/internal/diag"
	"github.com/tallevi/parla/internal/observability"
	"github.com/tallevi/parla/internal/protocol"
)

// StatusFunc receives connection-state changes together with a short
// human-readable phrase for the status indicator.
type StatusFunc func(state ConnectionState, text string)

// Router folds the inbound realtime event stream into conversation and
// connection state. Events are dispatched strictly in arrival order; the
// transports guarantee ordering so the router never reorders or buffers
// beyond the single open assistant turn.
type Router struct {
	conv     *conversation.Log
	diag     *diag.Logger
	metrics  *observability.Metrics
	setState StatusFunc

	mu    sync.Mutex
	model string
}

func NewRouter(conv *conversation.Log, diagLog *diag.Logger, metrics *observability.Metrics, setState StatusFunc) *Router {
	return &Router{conv: conv, diag: diagLog, metrics: metrics, setState: setState}
}

// Model reports the remote-confirmed model identity, if any.
func (r *Router) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

// OnEvent processes one raw data-channel message. A malformed payload is
// logged and dropped; it is never fatal to the session. State transitions do
// not condition on the prior state.
func (r *Router) OnEvent(raw []byte) {
	parsed, err := protocol.ParseServerEvent(raw)
	if err != nil {
		r.diag.Warningf("dropping malformed event: %v", err)
		r.metrics.RealtimeEvents.WithLabelValues("malformed").Inc()
		return
	}
	r.metrics.RealtimeEvents.WithLabelValues(string(eventTypeOf(parsed))).Inc()

	switch ev := parsed.(type) {
	case protocol.SessionCreated:
		r.mu.Lock()
		r.model = ev.Session.Model
		r.mu.Unlock()
		r.diag.Successf("session created (model %s)", ev.Session.Model)
	case protocol.SessionUpdated:
		r.diag.Infof("session configuration updated")
	case protocol.SpeechStarted:
		r.setState(StateListening, "You are speaking...")
	case protocol.SpeechStopped:
		r.setState(StateProcessing, "Processing...")
	case protocol.InputTranscriptionCompleted:
		r.conv.AppendUser(ev.Transcript)
	case protocol.ResponseAudioTranscriptDelta:
		r.conv.AppendAssistantDelta(ev.Delta)
	case protocol.ResponseAudioTranscriptDone:
		r.conv.FinalizeAssistant(ev.Transcript)
	case protocol.ResponseCreated:
		r.setState(StateSpeaking, "Assistant is speaking...")
	case protocol.ResponseDone:
		r.setState(StateListening, "Listening...")
	case protocol.ErrorEvent:
		// Remote-reported errors are non-fatal: surfaced, never terminal.
		// Whether the session survives is the caller's call.
		r.diag.Errorf("remote error: %s", ev.Error.Message)
		r.conv.AppendSystem("Error: " + ev.Error.Message)
	case protocol.Unknown:
		r.diag.Warningf("ignoring unhandled event type %q", ev.Type)
	}
}

func eventTypeOf(v any) protocol.EventType {
	switch ev := v.(type) {
	case protocol.SessionCreated:
		return ev.Type
	case protocol.SessionUpdated:
		return ev.Type
	case protocol.SpeechStarted:
		return ev.Type
	case protocol.SpeechStopped:
		return ev.Type
	case protocol.InputTranscriptionCompleted:
		return ev.Type
	case protocol.ResponseAudioTranscriptDelta:
		return ev.Type
	case protocol.ResponseAudioTranscriptDone:
		return ev.Type
	case protocol.ResponseCreated:
		return ev.Type
	case protocol.ResponseDone:
		return ev.Type
	case protocol.ErrorEvent:
		return ev.Type
	case protocol.Unknown:
		return "unknown"
	default:
		return "unknown"
	}
}

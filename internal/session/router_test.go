package session

import (
	"testing"

	"github.com/tallevi/parla/internal/conversation"
	"github.com/tallevi/parla/internal/diag"
	"github.com/tallevi/parla/internal/observability"
)

type stateRecorder struct {
	states []ConnectionState
	texts  []string
}

func (r *stateRecorder) record(state ConnectionState, text string) {
	r.states = append(r.states, state)
	r.texts = append(r.texts, text)
}

func (r *stateRecorder) last() ConnectionState {
	if len(r.states) == 0 {
		return StateIdle
	}
	return r.states[len(r.states)-1]
}

func newTestRouter(namespace string) (*Router, *conversation.Log, *stateRecorder) {
	conv := conversation.NewLog()
	rec := &stateRecorder{}
	r := NewRouter(conv, diag.NewLogger(), observability.NewMetrics(namespace), rec.record)
	return r, conv, rec
}

func TestRouterStateTransitions(t *testing.T) {
	r, _, rec := newTestRouter("router_states")

	steps := []struct {
		raw  string
		want ConnectionState
	}{
		{`{"type":"input_audio_buffer.speech_started"}`, StateListening},
		{`{"type":"input_audio_buffer.speech_stopped"}`, StateProcessing},
		{`{"type":"response.created"}`, StateSpeaking},
		{`{"type":"response.done"}`, StateListening},
	}
	for _, step := range steps {
		r.OnEvent([]byte(step.raw))
		if got := rec.last(); got != step.want {
			t.Fatalf("after %s: state = %q, want %q", step.raw, got, step.want)
		}
	}
}

func TestRouterSessionCreatedStoresModel(t *testing.T) {
	r, _, _ := newTestRouter("router_model")

	r.OnEvent([]byte(`{"type":"session.created","session":{"id":"sess_1","model":"gpt-realtime"}}`))
	if got := r.Model(); got != "gpt-realtime" {
		t.Fatalf("Model() = %q, want %q", got, "gpt-realtime")
	}
}

func TestRouterTranscriptAssembly(t *testing.T) {
	r, conv, _ := newTestRouter("router_transcript")

	r.OnEvent([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"what time is it"}`))
	r.OnEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"It is "}`))
	r.OnEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"noon."}`))
	r.OnEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"It is noon."}`))

	turns := conv.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != conversation.RoleUser || turns[0].Text != "what time is it" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != conversation.RoleAssistant || turns[1].Text != "It is noon." {
		t.Errorf("assistant turn = %+v", turns[1])
	}
	if !turns[1].Final {
		t.Error("assistant turn not finalized")
	}
}

func TestRouterEmptyFinalTranscriptKeepsDeltas(t *testing.T) {
	r, conv, _ := newTestRouter("router_empty_final")

	r.OnEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"Hel"}`))
	r.OnEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"lo"}`))
	r.OnEvent([]byte(`{"type":"response.audio_transcript.done","transcript":""}`))

	turns := conv.Turns()
	if len(turns) != 1 || turns[0].Text != "Hello" {
		t.Fatalf("turns = %+v, want single assistant turn %q", turns, "Hello")
	}
}

func TestRouterFinalWithoutDeltasProducesNoTurn(t *testing.T) {
	r, conv, _ := newTestRouter("router_final_no_deltas")

	r.OnEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"Hello there."}`))

	if turns := conv.Turns(); len(turns) != 0 {
		t.Fatalf("turns = %+v, want none without an open assistant turn", turns)
	}
}

func TestRouterRemoteErrorIsNonFatal(t *testing.T) {
	r, conv, rec := newTestRouter("router_error")

	r.OnEvent([]byte(`{"type":"response.created"}`))
	before := len(rec.states)

	r.OnEvent([]byte(`{"type":"error","error":{"type":"server_error","code":"rate_limit","message":"quota exceeded"}}`))

	if len(rec.states) != before {
		t.Errorf("error event changed connection state to %q", rec.last())
	}
	turns := conv.Turns()
	if len(turns) != 1 || turns[0].Role != conversation.RoleSystem || turns[0].Text != "Error: quota exceeded" {
		t.Fatalf("turns = %+v, want one system error turn", turns)
	}
}

func TestRouterUnknownEventIgnored(t *testing.T) {
	r, conv, rec := newTestRouter("router_unknown")

	r.OnEvent([]byte(`{"type":"rate_limits.updated","rate_limits":[]}`))

	if len(rec.states) != 0 {
		t.Errorf("unknown event changed state: %v", rec.states)
	}
	if len(conv.Turns()) != 0 {
		t.Errorf("unknown event produced turns: %+v", conv.Turns())
	}
}

func TestRouterMalformedEventDropped(t *testing.T) {
	r, conv, rec := newTestRouter("router_malformed")

	r.OnEvent([]byte(`{"type": "response.created"`))

	if len(rec.states) != 0 || len(conv.Turns()) != 0 {
		t.Error("malformed event had side effects")
	}
}

func TestBuildInstructions(t *testing.T) {
	got := BuildInstructions("a helpful travel agent", "warm and concise", 60, "Italian")
	want := "You are a helpful travel agent. Your personality is warm and concise. " +
		"Keep your answers under 60 words. Always respond in Italian."
	if got != want {
		t.Fatalf("BuildInstructions = %q, want %q", got, want)
	}

	if got := BuildInstructions("", "", 0, ""); got != "" {
		t.Fatalf("empty knobs produced %q", got)
	}
}

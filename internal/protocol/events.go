package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType identifies realtime data-channel payload variants.
type EventType string

const (
	// Server events.
	TypeSessionCreated               EventType = "session.created"
	TypeSessionUpdated               EventType = "session.updated"
	TypeSpeechStarted                EventType = "input_audio_buffer.speech_started"
	TypeSpeechStopped                EventType = "input_audio_buffer.speech_stopped"
	TypeInputTranscriptionCompleted  EventType = "conversation.item.input_audio_transcription.completed"
	TypeResponseAudioTranscriptDelta EventType = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone  EventType = "response.audio_transcript.done"
	TypeResponseCreated              EventType = "response.created"
	TypeResponseDone                 EventType = "response.done"
	TypeError                        EventType = "error"

	// Client events.
	TypeSessionUpdate    EventType = "session.update"
	TypeInputAudioAppend EventType = "input_audio_buffer.append"
)

type Envelope struct {
	Type EventType `json:"type"`
}

// SessionInfo is the session object embedded in session lifecycle events.
type SessionInfo struct {
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
}

type SessionCreated struct {
	Type    EventType   `json:"type"`
	Session SessionInfo `json:"session"`
}

type SessionUpdated struct {
	Type    EventType   `json:"type"`
	Session SessionInfo `json:"session"`
}

type SpeechStarted struct {
	Type         EventType `json:"type"`
	AudioStartMS int64     `json:"audio_start_ms,omitempty"`
}

type SpeechStopped struct {
	Type       EventType `json:"type"`
	AudioEndMS int64     `json:"audio_end_ms,omitempty"`
}

type InputTranscriptionCompleted struct {
	Type       EventType `json:"type"`
	ItemID     string    `json:"item_id,omitempty"`
	Transcript string    `json:"transcript"`
}

type ResponseAudioTranscriptDelta struct {
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id,omitempty"`
	Delta      string    `json:"delta"`
}

type ResponseAudioTranscriptDone struct {
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id,omitempty"`
	Transcript string    `json:"transcript"`
}

type ResponseCreated struct {
	Type EventType `json:"type"`
}

type ResponseDone struct {
	Type EventType `json:"type"`
}

// ErrorDetail is the error object carried by the remote "error" event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type ErrorEvent struct {
	Type  EventType   `json:"type"`
	Error ErrorDetail `json:"error"`
}

// Unknown carries any tag outside the consumed protocol surface. Callers log
// and ignore it; new server-side event types must never be fatal.
type Unknown struct {
	Type EventType
	Raw  json.RawMessage
}

// SessionUpdate is the client event carrying session configuration, sent once
// right after the channel opens when instructions are configured.
type SessionUpdate struct {
	Type    EventType       `json:"type"`
	Session SessionSettings `json:"session"`
}

type SessionSettings struct {
	Instructions string `json:"instructions"`
}

func NewSessionUpdate(instructions string) SessionUpdate {
	return SessionUpdate{
		Type:    TypeSessionUpdate,
		Session: SessionSettings{Instructions: instructions},
	}
}

// InputAudioAppend streams base64 PCM16 microphone audio over a transport that
// carries audio in-band (the websocket transport; WebRTC sends audio as media).
type InputAudioAppend struct {
	Type  EventType `json:"type"`
	Audio string    `json:"audio"`
}

func NewInputAudioAppend(audioBase64 string) InputAudioAppend {
	return InputAudioAppend{Type: TypeInputAudioAppend, Audio: audioBase64}
}

// ParseServerEvent decodes one data-channel message into its typed variant.
// Unrecognized tags decode to Unknown rather than an error; only malformed
// JSON is reported as an error.
func ParseServerEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}

	switch env.Type {
	case TypeSessionCreated:
		var ev SessionCreated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeSessionUpdated:
		var ev SessionUpdated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeSpeechStarted:
		var ev SpeechStarted
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeSpeechStopped:
		var ev SpeechStopped
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeInputTranscriptionCompleted:
		var ev InputTranscriptionCompleted
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeResponseAudioTranscriptDelta:
		var ev ResponseAudioTranscriptDelta
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeResponseAudioTranscriptDone:
		var ev ResponseAudioTranscriptDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeResponseCreated:
		var ev ResponseCreated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeResponseDone:
		var ev ResponseDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return Unknown{Type: env.Type, Raw: append([]byte(nil), raw...)}, nil
	}
}

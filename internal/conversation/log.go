package conversation

import (
	"strings"
	"sync"
)

// Role attributes a turn to one speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one contiguous utterance. Assistant turns stay mutable while open;
// every other turn is final on append.
type Turn struct {
	Role  Role   `json:"role"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Listener observes appended or updated turns. index is the turn's position in
// the log so a presentation layer can update in place.
type Listener func(index int, turn Turn)

// Log is the append-only conversation transcript. At most one assistant turn
// is open at a time; deltas always target that turn and finalization replaces
// its accumulated text with the authoritative transcript.
type Log struct {
	mu       sync.Mutex
	turns    []Turn
	openIdx  int // index of the open assistant turn, -1 if none
	listener Listener
}

func NewLog() *Log {
	return &Log{openIdx: -1}
}

func (l *Log) SetListener(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = fn
}

// AppendUser records a finalized user turn. Empty transcripts are skipped.
func (l *Log) AppendUser(transcript string) {
	if strings.TrimSpace(transcript) == "" {
		return
	}
	l.append(Turn{Role: RoleUser, Text: transcript, Final: true})
}

// AppendSystem records a system notice.
func (l *Log) AppendSystem(text string) {
	l.append(Turn{Role: RoleSystem, Text: text, Final: true})
}

// AppendAssistantDelta accumulates streamed text into the open assistant turn,
// opening exactly one new turn when none is open.
func (l *Log) AppendAssistantDelta(delta string) {
	l.mu.Lock()
	if l.openIdx < 0 {
		l.turns = append(l.turns, Turn{Role: RoleAssistant})
		l.openIdx = len(l.turns) - 1
	}
	l.turns[l.openIdx].Text += delta
	idx, turn, fn := l.openIdx, l.turns[l.openIdx], l.listener
	l.mu.Unlock()

	if fn != nil {
		fn(idx, turn)
	}
}

// FinalizeAssistant closes the open assistant turn. A non-empty transcript
// overwrites whatever the deltas accumulated; the deltas are provisional and
// the final transcript always wins. Without an open turn this is a no-op.
func (l *Log) FinalizeAssistant(transcript string) {
	l.mu.Lock()
	if l.openIdx < 0 {
		l.mu.Unlock()
		return
	}
	if transcript != "" {
		l.turns[l.openIdx].Text = transcript
	}
	l.turns[l.openIdx].Final = true
	idx, turn, fn := l.openIdx, l.turns[l.openIdx], l.listener
	l.openIdx = -1
	l.mu.Unlock()

	if fn != nil {
		fn(idx, turn)
	}
}

// Turns returns a snapshot of the transcript in append order.
func (l *Log) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Reset wipes the transcript. A restarted session starts from an empty log;
// only one session exists at a time so prior history is not scoped, it is
// discarded.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
	l.openIdx = -1
}

func (l *Log) append(t Turn) {
	l.mu.Lock()
	l.turns = append(l.turns, t)
	idx, fn := len(l.turns)-1, l.listener
	l.mu.Unlock()

	if fn != nil {
		fn(idx, t)
	}
}

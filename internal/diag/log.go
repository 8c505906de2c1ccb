package diag

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tallevi/parla/internal/policy"
)

// Level grades presentation log entries.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one timestamped line in the session's diagnostic log, the stream a
// presentation layer renders alongside the conversation.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

const defaultCapacity = 256

// Logger keeps a bounded window of recent entries and fans new entries out to
// subscribers. Entries are also mirrored to the process log.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	subs    []chan Entry
}

func NewLogger() *Logger {
	return &Logger{cap: defaultCapacity}
}

// Logf appends a formatted entry. Credential material is scrubbed before the
// message reaches any sink.
func (l *Logger) Logf(level Level, format string, args ...any) {
	msg, _ := policy.RedactSecrets(fmt.Sprintf(format, args...))
	e := Entry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: msg,
	}
	log.Printf("[%s] %s", e.Level, e.Message)

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	subs := make([]chan Entry, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Slow subscribers drop entries rather than blocking the session.
		}
	}
}

func (l *Logger) Infof(format string, args ...any)    { l.Logf(LevelInfo, format, args...) }
func (l *Logger) Successf(format string, args ...any) { l.Logf(LevelSuccess, format, args...) }
func (l *Logger) Warningf(format string, args ...any) { l.Logf(LevelWarning, format, args...) }
func (l *Logger) Errorf(format string, args ...any)   { l.Logf(LevelError, format, args...) }

// Recent returns a snapshot of the retained entries, oldest first.
func (l *Logger) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Subscribe returns a channel of future entries plus an unsubscribe func.
func (l *Logger) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 64)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		for i, sub := range l.subs {
			if sub == ch {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

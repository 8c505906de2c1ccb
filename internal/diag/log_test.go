package diag

import (
	"strings"
	"testing"
	"time"
)

func TestLoggerRetainsEntries(t *testing.T) {
	l := NewLogger()
	l.Infof("first")
	l.Successf("second %d", 2)
	l.Errorf("third")

	entries := l.Recent()
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Level != LevelInfo || entries[0].Message != "first" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Message != "second 2" {
		t.Fatalf("Message = %q, want %q", entries[1].Message, "second 2")
	}
	if entries[2].Level != LevelError {
		t.Fatalf("Level = %q, want %q", entries[2].Level, LevelError)
	}
	if entries[0].Time.IsZero() {
		t.Fatalf("entries should be timestamped")
	}
}

func TestLoggerBoundsRetention(t *testing.T) {
	l := NewLogger()
	l.cap = 4
	for i := 0; i < 10; i++ {
		l.Infof("entry %d", i)
	}
	entries := l.Recent()
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}
	if entries[0].Message != "entry 6" {
		t.Fatalf("oldest retained = %q, want %q", entries[0].Message, "entry 6")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	l := NewLogger()
	ch, cancel := l.Subscribe()

	l.Warningf("heads up")
	select {
	case e := <-ch:
		if e.Level != LevelWarning || e.Message != "heads up" {
			t.Fatalf("unexpected entry: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for entry")
	}

	cancel()
	l.Infof("after cancel")
	select {
	case e := <-ch:
		t.Fatalf("received entry after unsubscribe: %+v", e)
	default:
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	l := NewLogger()
	l.Errorf("negotiation failed with Bearer ek_abc123def456ghi789")

	entries := l.Recent()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if strings.Contains(entries[0].Message, "ek_abc123def456ghi789") {
		t.Fatalf("credential leaked into log: %q", entries[0].Message)
	}
}

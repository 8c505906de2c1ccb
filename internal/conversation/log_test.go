package conversation

import "testing"

func TestFinalTranscriptOverwritesDeltas(t *testing.T) {
	l := NewLog()
	l.AppendAssistantDelta("Helo")
	l.AppendAssistantDelta(" wrold")
	l.FinalizeAssistant("Hello world.")

	turns := l.Turns()
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	if turns[0].Text != "Hello world." {
		t.Fatalf("Text = %q, want %q", turns[0].Text, "Hello world.")
	}
	if !turns[0].Final {
		t.Fatalf("turn should be final")
	}
}

func TestEmptyFinalKeepsAccumulatedText(t *testing.T) {
	l := NewLog()
	l.AppendAssistantDelta("partial answer")
	l.FinalizeAssistant("")

	turns := l.Turns()
	if len(turns) != 1 || turns[0].Text != "partial answer" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if !turns[0].Final {
		t.Fatalf("turn should be final")
	}
}

func TestAtMostOneOpenAssistantTurn(t *testing.T) {
	l := NewLog()
	l.AppendAssistantDelta("a")
	l.AppendAssistantDelta("b")
	l.AppendAssistantDelta("c")
	if got := len(l.Turns()); got != 1 {
		t.Fatalf("len(turns) = %d, want 1", got)
	}

	l.FinalizeAssistant("abc")
	l.AppendAssistantDelta("next")
	turns := l.Turns()
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[1].Text != "next" || turns[1].Final {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
}

func TestFinalizeWithoutOpenTurnIsNoOp(t *testing.T) {
	l := NewLog()
	l.FinalizeAssistant("nothing open")
	if got := len(l.Turns()); got != 0 {
		t.Fatalf("len(turns) = %d, want 0", got)
	}
}

func TestAppendUserSkipsEmptyTranscript(t *testing.T) {
	l := NewLog()
	l.AppendUser("   ")
	l.AppendUser("hi there")
	turns := l.Turns()
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "hi there" {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
}

func TestInterleavedRolesKeepAppendOrder(t *testing.T) {
	l := NewLog()
	l.AppendSystem("Session created")
	l.AppendUser("what's the weather?")
	l.AppendAssistantDelta("Sunny")
	l.FinalizeAssistant("Sunny and mild.")

	turns := l.Turns()
	wantRoles := []Role{RoleSystem, RoleUser, RoleAssistant}
	if len(turns) != len(wantRoles) {
		t.Fatalf("len(turns) = %d, want %d", len(turns), len(wantRoles))
	}
	for i, role := range wantRoles {
		if turns[i].Role != role {
			t.Fatalf("turns[%d].Role = %q, want %q", i, turns[i].Role, role)
		}
	}
}

func TestListenerReceivesIndexAndUpdates(t *testing.T) {
	l := NewLog()
	var gotIdx []int
	var gotText []string
	l.SetListener(func(idx int, turn Turn) {
		gotIdx = append(gotIdx, idx)
		gotText = append(gotText, turn.Text)
	})

	l.AppendUser("hello")
	l.AppendAssistantDelta("h")
	l.AppendAssistantDelta("i")
	l.FinalizeAssistant("hi!")

	wantIdx := []int{0, 1, 1, 1}
	if len(gotIdx) != len(wantIdx) {
		t.Fatalf("listener calls = %d, want %d", len(gotIdx), len(wantIdx))
	}
	for i := range wantIdx {
		if gotIdx[i] != wantIdx[i] {
			t.Fatalf("gotIdx[%d] = %d, want %d", i, gotIdx[i], wantIdx[i])
		}
	}
	if gotText[len(gotText)-1] != "hi!" {
		t.Fatalf("final listener text = %q, want %q", gotText[len(gotText)-1], "hi!")
	}
}

func TestResetClearsOpenTurn(t *testing.T) {
	l := NewLog()
	l.AppendAssistantDelta("stale")
	l.Reset()
	if got := len(l.Turns()); got != 0 {
		t.Fatalf("len(turns) = %d, want 0", got)
	}
	l.AppendAssistantDelta("fresh")
	turns := l.Turns()
	if len(turns) != 1 || turns[0].Text != "fresh" {
		t.Fatalf("unexpected turns after reset: %+v", turns)
	}
}

package transcript

import (
	"testing"
	"time"
)

func TestTranscript_AppendAndLast(t *testing.T) {
	tr := New()

	if _, _, ok := tr.Last(RoleAssistant); ok {
		t.Error("Last() on empty transcript should report false")
	}

	tr.Append(RoleAssistant, "Hello, am I speaking with Ravi?")
	tr.Append(RoleUser, "Yes")
	tr.Append(RoleAssistant, "Nice to speak with you, Ravi.")
	tr.Append(RoleUser, "Okay")

	turn, idx, ok := tr.Last(RoleAssistant)
	if !ok || idx != 2 || turn.Content != "Nice to speak with you, Ravi." {
		t.Errorf("Last(assistant) = %+v, %d, %v", turn, idx, ok)
	}
	if tr.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tr.Len())
	}
	if tr.Count(RoleUser) != 2 {
		t.Errorf("Count(user) = %d, want 2", tr.Count(RoleUser))
	}
}

func TestTranscript_TurnsIsCopy(t *testing.T) {
	tr := New()
	tr.Append(RoleUser, "hi")

	turns := tr.Turns()
	turns[0].Content = "changed"

	if tr.Turns()[0].Content != "hi" {
		t.Error("Turns() should return a copy")
	}
}

func TestTranscript_ChangedWakesOnAppend(t *testing.T) {
	tr := New()
	ch := tr.Changed()

	select {
	case <-ch:
		t.Fatal("Changed() closed before any append")
	default:
	}

	go tr.Append(RoleAssistant, "Goodbye.")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed() not closed after Append")
	}

	// A fresh channel is armed for the next append.
	select {
	case <-tr.Changed():
		t.Fatal("new Changed() channel should be open")
	default:
	}
}

package resolver

import (
	"fmt"
	"testing"
	"time"
)

func textTurn(id, text string) Turn {
	return Turn{
		ID:      id,
		Message: InboundMessage{SenderID: "s1", Kind: MediaText, Text: text},
		Output:  OutputResult{Type: TypeAnswer, Content: "ok"},
	}
}

func TestPushEvictsOldestBeyondWindow(t *testing.T) {
	t.Parallel()

	s := NewContextStore()
	for i := 1; i <= WindowSize+1; i++ {
		s.Push("s1", textTurn(fmt.Sprintf("t%d", i), fmt.Sprintf("message %d", i)))
	}

	if got := s.Len("s1"); got != WindowSize {
		t.Fatalf("Len = %d, want %d", got, WindowSize)
	}

	window := s.Peek("s1", WindowSize)
	if window[0].ID != "t2" {
		t.Errorf("oldest turn = %s, want t2 (t1 must be evicted)", window[0].ID)
	}
	if window[len(window)-1].ID != fmt.Sprintf("t%d", WindowSize+1) {
		t.Errorf("newest turn = %s, want t%d", window[len(window)-1].ID, WindowSize+1)
	}
}

func TestPeekReturnsChronologicalCopy(t *testing.T) {
	t.Parallel()

	s := NewContextStore()
	s.Push("s1", textTurn("t1", "first"))
	s.Push("s1", textTurn("t2", "second"))

	got := s.Peek("s1", 10)
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("Peek order wrong: %+v", got)
	}

	// Mutating the copy must not touch the stored window.
	got[0].Output.Content = "mutated"
	if s.Peek("s1", 10)[0].Output.Content != "ok" {
		t.Error("Peek returned a view into internal state")
	}
}

func TestWindowsAreIndependentPerStudent(t *testing.T) {
	t.Parallel()

	s := NewContextStore()
	s.Push("alice", textTurn("a1", "algebra"))
	s.Push("bob", textTurn("b1", "biology"))

	s.Reset("alice")
	if s.Len("alice") != 0 {
		t.Error("alice's window should be empty after reset")
	}
	if s.Len("bob") != 1 {
		t.Error("bob's window must survive alice's reset")
	}
}

func TestResetClearsTopicAndLastOutput(t *testing.T) {
	t.Parallel()

	s := NewContextStore()
	s.Push("s1", Turn{ID: "t1", Output: OutputResult{Type: TypeClarification, Content: "which subject?"}})
	s.SetTopic("s1", "algebra equation")

	s.Reset("s1")

	if s.Topic("s1") != "" {
		t.Error("topic should be cleared by reset")
	}
	if _, ok := s.LastOutput("s1"); ok {
		t.Error("last output should be cleared by reset")
	}
}

func TestResetIdleClearsOnlyStaleWindows(t *testing.T) {
	t.Parallel()

	s := NewContextStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Push("stale", textTurn("t1", "old question"))

	now = now.Add(45 * time.Minute)
	s.Push("fresh", textTurn("t2", "new question"))

	cleared := s.ResetIdle(30 * time.Minute)
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}
	if s.Len("stale") != 0 {
		t.Error("stale window should be gone")
	}
	if s.Len("fresh") != 1 {
		t.Error("fresh window must survive the sweep")
	}
}

// Package resolver – context.go implements the keyed context store: one
// bounded rolling window of recent turns per student, plus the active topic
// tag. No cross-student state is ever shared.
package resolver

import (
	"sync"
	"time"
)

// WindowSize is the maximum number of turns retained per student.
const WindowSize = 5

// window holds the per-student conversation state. Oldest turn first.
type window struct {
	turns      []Turn
	topic      string
	lastOutput *OutputResult
	lastActive time.Time
}

// ContextStore holds context windows keyed by student identifier.
// All operations are safe for concurrent use; callers that need a whole
// turn to be serialized per student (single-writer discipline) must do so
// above this store (see the assistant's worker dispatch).
type ContextStore struct {
	mu      sync.RWMutex
	windows map[string]*window
	now     func() time.Time // swappable in tests
}

// NewContextStore creates an empty context store.
func NewContextStore() *ContextStore {
	return &ContextStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *ContextStore) get(studentID string) *window {
	w, ok := s.windows[studentID]
	if !ok {
		w = &window{}
		s.windows[studentID] = w
	}
	return w
}

// Push appends a completed turn to the student's window, evicting the
// oldest turn when the window would exceed WindowSize. It also records the
// turn's output as the "last response" used for clarification dedup.
func (s *ContextStore) Push(studentID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.get(studentID)
	w.turns = append(w.turns, turn)
	if len(w.turns) > WindowSize {
		w.turns = w.turns[len(w.turns)-WindowSize:]
	}
	out := turn.Output
	w.lastOutput = &out
	w.lastActive = s.now()
}

// Peek returns up to n most recent turns in chronological order
// (most recent last). The returned slice is a copy.
func (s *ContextStore) Peek(studentID string, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[studentID]
	if !ok || n <= 0 {
		return nil
	}
	turns := w.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len returns the current window length for a student.
func (s *ContextStore) Len(studentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.windows[studentID]; ok {
		return len(w.turns)
	}
	return 0
}

// Reset clears the student's turns and topic tag. The last-response
// tracking is cleared too: a clarification asked before a reset belongs
// to a dead topic and must not suppress a new one.
func (s *ContextStore) Reset(studentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[studentID]
	if !ok {
		return
	}
	w.turns = nil
	w.topic = ""
	w.lastOutput = nil
}

// Topic returns the active topic tag, or "" when none is set.
func (s *ContextStore) Topic(studentID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.windows[studentID]; ok {
		return w.topic
	}
	return ""
}

// SetTopic records the active topic tag for a student.
func (s *ContextStore) SetTopic(studentID, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(studentID).topic = topic
	s.windows[studentID].lastActive = s.now()
}

// LastOutput returns the output of the most recent turn, if any.
func (s *ContextStore) LastOutput(studentID string) (OutputResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[studentID]
	if !ok || w.lastOutput == nil {
		return OutputResult{}, false
	}
	return *w.lastOutput, true
}

// ResetIdle clears every window whose last activity is older than maxIdle.
// This is the hook for the externally owned session boundary (the
// scheduler calls it periodically). Returns the number of windows cleared.
func (s *ContextStore) ResetIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	cleared := 0
	for id, w := range s.windows {
		if len(w.turns) == 0 && w.topic == "" {
			continue
		}
		if w.lastActive.Before(cutoff) {
			delete(s.windows, id)
			cleared++
		}
	}
	return cleared
}

package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s := New(nil)
	job := Job{Name: "refresh", Spec: "@daily", Run: func() error { return nil }}
	if err := s.Add(job); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := s.Add(job); err == nil {
		t.Fatal("second Add with same name should fail")
	}
}

func TestAddRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	s := New(nil)
	err := s.Add(Job{Name: "bad", Spec: "not a cron spec", Run: func() error { return nil }})
	if err == nil {
		t.Fatal("invalid cron spec should be rejected")
	}
}

func TestExecuteSkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	s := New(nil)
	var runs atomic.Int32
	release := make(chan struct{})
	job := Job{
		Name: "slow",
		Spec: "@every 1h",
		Run: func() error {
			runs.Add(1)
			<-release
			return nil
		},
	}

	go s.execute(job)
	// Wait for the first run to start.
	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	// Second tick while the first is still in flight must be skipped.
	s.execute(job)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1 (overlap must be skipped)", got)
	}
	close(release)
}

func TestExecuteRecordsFailure(t *testing.T) {
	t.Parallel()

	s := New(nil)
	job := Job{Name: "failing", Spec: "@daily", Run: func() error { return errors.New("boom") }}

	// Must not panic and must clear the running flag for the next tick.
	s.execute(job)
	s.execute(job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running["failing"] {
		t.Error("running flag stuck after failed job")
	}
}

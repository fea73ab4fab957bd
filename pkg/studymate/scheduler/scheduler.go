// Package scheduler runs StudyMate's recurring maintenance jobs on cron
// expressions: the daily credit refresh and the idle-session sweep.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of recurring work.
type Job struct {
	Name string
	Spec string // cron expression, including @daily / @every forms
	Run  func() error
}

// Scheduler wraps robfig/cron with overlap protection and logging.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]bool
	entries map[string]cron.EntryID
}

// New creates a scheduler. Jobs run in the local timezone.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger.With("component", "scheduler"),
		running: make(map[string]bool),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a job. Duplicate names and invalid cron specs are rejected.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}

	id, err := s.cron.AddFunc(job.Spec, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("registering job %q (%s): %w", job.Name, job.Spec, err)
	}
	s.entries[job.Name] = id
	s.logger.Info("job registered", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("scheduler stop timed out waiting for jobs")
	}
}

// execute runs a job unless a previous run of it is still in flight.
func (s *Scheduler) execute(job Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping this tick", "job", job.Name)
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[job.Name] = false
		s.mu.Unlock()
	}()

	start := time.Now()
	if err := job.Run(); err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", job.Name, "elapsed_ms", time.Since(start).Milliseconds())
}

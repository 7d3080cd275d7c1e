// Package scheduler runs named jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the work run when a schedule fires.
type Job func(ctx context.Context) error

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string
	Schedule string
	Next     time.Time
}

type entry struct {
	id       cron.EntryID
	schedule string
}

// Scheduler manages cron-based jobs. A job that is still running when its
// next tick arrives is skipped for that tick.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]entry
	ctx    context.Context
	logger *slog.Logger
}

// New creates a new scheduler. loc may be nil for the local time zone.
func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:   make(map[string]entry),
		ctx:    context.Background(),
		logger: logger.With("component", "scheduler"),
	}
}

// Start begins the cron scheduler. Blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// AddJob registers job under name, replacing any job with the same name.
// The schedule is a standard 5-field cron expression or a descriptor such
// as @weekly or @every 1h.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.id)
	}
	s.jobs[name] = entry{id: id, schedule: schedule}
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	s.logger.Info("cron fired", "job", name)
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err, "elapsed", time.Since(start))
		return
	}
	s.logger.Info("job finished", "job", name, "elapsed", time.Since(start))
}

// RemoveJob removes the named job.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
	}
}

// ListJobs returns the registered jobs sorted by name. Next is zero until
// the scheduler has started.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, JobInfo{Name: name, Schedule: e.schedule, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// JobCount returns the total number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

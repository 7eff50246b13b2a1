package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is a snapshot of one registered job for the status surface.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

type jobEntry struct {
	job      Job
	schedule string
	entryID  cron.EntryID

	lastRun   *time.Time
	lastError string
}

// Scheduler manages background jobs. Cron specs are evaluated in
// America/New_York so market cutoffs line up with exchange time.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	jobs    []*jobEntry
	running bool
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AddJob registers a job with a standard 5-field cron schedule.
// Schedule examples:
//   - "45 15 * * MON-FRI"  - 15:45 on weekdays
//   - "*/30 9-16 * * *"    - Every 30 minutes, 9:00-16:30
//   - "@hourly"            - Every hour
func (s *Scheduler) AddJob(schedule string, job Job) error {
	entry := &jobEntry{job: job, schedule: schedule}

	id, err := s.cron.AddFunc(schedule, func() {
		s.runEntry(entry)
	})
	if err != nil {
		return err
	}

	entry.entryID = id

	s.mu.Lock()
	s.jobs = append(s.jobs, entry)
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

// Jobs returns a status snapshot for every registered job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := JobStatus{
			Name:      entry.job.Name(),
			Schedule:  entry.schedule,
			LastRun:   entry.lastRun,
			LastError: entry.lastError,
		}
		if s.running {
			next := s.cron.Entry(entry.entryID).Next
			if !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (s *Scheduler) runEntry(entry *jobEntry) {
	s.log.Debug().Str("job", entry.job.Name()).Msg("Running job")

	err := entry.job.Run()

	now := time.Now()
	s.mu.Lock()
	entry.lastRun = &now
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", entry.job.Name()).
			Msg("Job failed")
	} else {
		s.log.Debug().Str("job", entry.job.Name()).Msg("Job completed")
	}
}

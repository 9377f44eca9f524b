// Package scheduler runs jobs on cron schedules. A job that is still
// running when its next tick fires is skipped, never overlapped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu    sync.Mutex
	names map[cron.EntryID]string
}

// New creates a scheduler using standard five-field cron specs.
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:   log,
		names: map[cron.EntryID]string{},
	}
}

// Start starts the scheduler and logs when each job fires next.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.cron.Entries() {
		s.log.Info().
			Str("job", s.names[e.ID]).
			Time("next", e.Next).
			Msg("next run")
	}
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job under schedule. Each run gets ctx.
// Schedule examples:
//   - "0 15 * * 1-5"   - 15:00 on weekdays
//   - "@hourly"        - every hour
//   - "@every 30m"     - every 30 minutes
func (s *Scheduler) AddJob(ctx context.Context, schedule string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(schedule, s.wrap(ctx, job))
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	s.names[id] = job.Name()
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("job registered")

	return id, nil
}

// Next reports when the entry fires next. Zero until Start.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run(ctx)
}

func (s *Scheduler) wrap(ctx context.Context, job Job) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("running job")

		if err := job.Run(ctx); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("job completed")
	}
}

// ValidateSpec reports whether spec parses as a standard cron schedule.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

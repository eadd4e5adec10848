// Package scheduler runs the recurring background jobs: the nightly
// screener sweep, the periodic trade-plan refresh of frequently viewed
// symbols, and the cache retention sweep. Ad-hoc runs go through the job
// trigger endpoint, which invokes Job.Run directly, so the scheduler only
// deals in cron registrations.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a schedulable unit of work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a scheduler. Schedules use six-field cron expressions
// (seconds first) or descriptors like "@hourly".
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule. The jobs here are batch runs
// that take minutes to hours, so each run is logged with its duration.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Info().Str("job", job.Name()).Msg("Running job")
		start := time.Now()

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Dur("duration", time.Since(start)).
				Msg("Job failed")
			return
		}

		s.log.Info().
			Str("job", job.Name()).
			Dur("duration", time.Since(start)).
			Msg("Job completed")
	})

	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

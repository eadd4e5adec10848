package cache

import (
	"time"

	"github.com/rs/zerolog"
)

// SweepJob removes cache entries older than the retention window. It is
// scheduled daily; entries written today are always preserved.
type SweepJob struct {
	store     *Store
	retention time.Duration
	log       zerolog.Logger
}

// NewSweepJob creates the retention sweep job.
func NewSweepJob(store *Store, retention time.Duration, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		store:     store,
		retention: retention,
		log:       log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *SweepJob) Name() string {
	return "cache_sweep"
}

// Run executes the sweep.
func (j *SweepJob) Run() error {
	deleted, err := j.store.SweepOlderThan(j.retention)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to sweep cache entries")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Dur("retention", j.retention).
			Msg("Swept expired cache entries")
	}
	return nil
}

package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/clock"
	"github.com/swingscan/swingscan/internal/refresh"
	"github.com/swingscan/swingscan/internal/universe"
)

// ScreenerRefreshJob walks the whole symbol universe through the screener
// refresh path. A run that cannot finish inside its window stops at a batch
// boundary and the next run covers the remainder.
type ScreenerRefreshJob struct {
	universe *universe.Service
	orch     *refresh.Orchestrator
	history  *refresh.History
	window   time.Duration
	clock    clock.Clock
	log      zerolog.Logger
}

// NewScreenerRefreshJob creates the nightly screener sweep job.
func NewScreenerRefreshJob(
	u *universe.Service,
	orch *refresh.Orchestrator,
	history *refresh.History,
	window time.Duration,
	clk clock.Clock,
	log zerolog.Logger,
) *ScreenerRefreshJob {
	return &ScreenerRefreshJob{
		universe: u,
		orch:     orch,
		history:  history,
		window:   window,
		clock:    clk,
		log:      log.With().Str("job", "screener_refresh").Logger(),
	}
}

// Name returns the job name.
func (j *ScreenerRefreshJob) Name() string { return "screener_refresh" }

// Run discovers the universe and refreshes every symbol's screener row.
// Item failures are already recorded in the report; only being unable to
// start at all is a job error.
func (j *ScreenerRefreshJob) Run() error {
	ctx := context.Background()

	symbols, err := j.universe.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover universe: %w", err)
	}
	if len(symbols) == 0 {
		j.log.Warn().Msg("Universe is empty, nothing to refresh")
		return nil
	}

	deadline := j.clock.Now().Add(j.window)
	report := j.orch.Run(ctx, symbols, deadline)
	recordReport(j.history, j.log, report)
	return nil
}

// recordReport persists the run summary and flags runs that stopped early
// at the deadline, so partial coverage is visible in the logs as well as
// the run history.
func recordReport(history *refresh.History, log zerolog.Logger, report refresh.Report) {
	if err := history.Record(report); err != nil {
		log.Error().Err(err).Str("run_id", report.RunID).Msg("Failed to record run history")
	}
	if !report.Complete {
		log.Warn().
			Str("run_id", report.RunID).
			Int("attempted", report.Attempted).
			Msg("Run stopped at deadline before covering all symbols")
	}
}

// PlanRefreshJob keeps the most-viewed trade plans warm. The hot list is
// ranked by how often each plan has been regenerated, which tracks actual
// demand without a separate counter.
type PlanRefreshJob struct {
	store       *cache.Store
	orch        *refresh.Orchestrator
	history     *refresh.History
	hotListSize int
	window      time.Duration
	clock       clock.Clock
	log         zerolog.Logger
}

// NewPlanRefreshJob creates the periodic trade-plan refresh job.
func NewPlanRefreshJob(
	store *cache.Store,
	orch *refresh.Orchestrator,
	history *refresh.History,
	hotListSize int,
	window time.Duration,
	clk clock.Clock,
	log zerolog.Logger,
) *PlanRefreshJob {
	return &PlanRefreshJob{
		store:       store,
		orch:        orch,
		history:     history,
		hotListSize: hotListSize,
		window:      window,
		clock:       clk,
		log:         log.With().Str("job", "plan_refresh").Logger(),
	}
}

// Name returns the job name.
func (j *PlanRefreshJob) Name() string { return "plan_refresh" }

// Run refreshes the hot list of trade plans.
func (j *PlanRefreshJob) Run() error {
	ctx := context.Background()

	keys, err := j.store.TopKeysByGeneration(cache.PlanPrefix, j.hotListSize)
	if err != nil {
		return fmt.Errorf("failed to load plan hot list: %w", err)
	}
	if len(keys) == 0 {
		j.log.Debug().Msg("No trade plans cached yet, nothing to keep warm")
		return nil
	}

	symbols := make([]string, len(keys))
	for i, key := range keys {
		symbols[i] = strings.TrimPrefix(key, cache.PlanPrefix)
	}

	deadline := j.clock.Now().Add(j.window)
	report := j.orch.Run(ctx, symbols, deadline)
	recordReport(j.history, j.log, report)
	return nil
}

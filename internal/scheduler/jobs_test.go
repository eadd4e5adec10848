package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/clock"
	"github.com/swingscan/swingscan/internal/domain"
	"github.com/swingscan/swingscan/internal/ratelimit"
	"github.com/swingscan/swingscan/internal/refresh"
	"github.com/swingscan/swingscan/internal/retry"
	"github.com/swingscan/swingscan/internal/universe"
)

// countingFetcher serves the same uptrending series for every symbol.
type countingFetcher struct {
	calls int
}

func (f *countingFetcher) FetchSeries(ctx context.Context, symbol string) (domain.Series, error) {
	f.calls++
	series := make(domain.Series, 0, 60)
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		base := 100 + float64(i)*0.5
		series = append(series, domain.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   base,
			High:   base + 1,
			Low:    base - 1,
			Close:  base + 0.5,
			Volume: 500000,
		})
	}
	return series, nil
}

func (f *countingFetcher) CostUnits() int { return 5 }

type jobFixture struct {
	store   *cache.Store
	coord   *refresh.Coordinator
	history *refresh.History
	fetcher *countingFetcher
	clock   *clock.Fake
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewFake(time.Date(2025, 6, 2, 22, 30, 0, 0, time.UTC))
	store, err := cache.NewStore(db, clk, zerolog.Nop())
	require.NoError(t, err)

	history, err := refresh.NewHistory(db, zerolog.Nop())
	require.NoError(t, err)

	fetcher := &countingFetcher{}
	limiter := ratelimit.New(1000, time.Minute, clk, zerolog.Nop())
	policy := retry.NewPolicy(1, 3*time.Second, clk, zerolog.Nop())

	coord := refresh.NewCoordinator(store, fetcher, limiter, policy, refresh.Config{
		PlanMaxAge:     4 * time.Hour,
		ScreenerMaxAge: 24 * time.Hour,
		EntryTTL:       24 * time.Hour,
	}, clk, zerolog.Nop())

	return &jobFixture{store: store, coord: coord, history: history, fetcher: fetcher, clock: clk}
}

func (f *jobFixture) orchestrator(kind string, process refresh.ProcessFunc) *refresh.Orchestrator {
	return refresh.NewOrchestrator(kind, process, refresh.OrchestratorConfig{
		BatchSize:       10,
		InterItemDelay:  time.Second,
		InterBatchDelay: 5 * time.Second,
		AvgItemTime:     3 * time.Second,
	}, f.clock, zerolog.Nop())
}

func TestScreenerRefreshJobSweepsUniverse(t *testing.T) {
	f := newJobFixture(t)

	svc := universe.NewService([]universe.Source{
		universe.NewStaticSource("core", []domain.Listing{
			{Symbol: "AAPL", DisplayName: "Apple Inc."},
			{Symbol: "NVDA", DisplayName: "NVIDIA Corp."},
		}),
	}, zerolog.Nop())

	orch := f.orchestrator("screener", func(ctx context.Context, symbol string) error {
		_, err := f.coord.RefreshScreener(ctx, symbol, cache.SourceScheduled)
		return err
	})
	job := NewScreenerRefreshJob(svc, orch, f.history, 2*time.Hour, f.clock, zerolog.Nop())

	assert.Equal(t, "screener_refresh", job.Name())
	require.NoError(t, job.Run())

	assert.Equal(t, 2, f.fetcher.calls)

	rows, err := f.store.ListByPrefix(cache.ScreenerPrefix)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	records, err := f.history.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "screener", records[0].Kind)
	assert.Equal(t, 2, records[0].Attempted)
	assert.Equal(t, 2, records[0].Succeeded)
	assert.True(t, records[0].Complete)
}

func TestScreenerRefreshJobEmptyUniverse(t *testing.T) {
	f := newJobFixture(t)

	svc := universe.NewService([]universe.Source{
		universe.NewStaticSource("core", nil),
	}, zerolog.Nop())

	orch := f.orchestrator("screener", func(ctx context.Context, symbol string) error {
		_, err := f.coord.RefreshScreener(ctx, symbol, cache.SourceScheduled)
		return err
	})
	job := NewScreenerRefreshJob(svc, orch, f.history, 2*time.Hour, f.clock, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, f.fetcher.calls)

	records, err := f.history.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records, "an empty universe records no run")
}

func TestPlanRefreshJobKeepsHotListWarm(t *testing.T) {
	f := newJobFixture(t)

	// Two cached plans, AAPL regenerated more often than MSFT.
	ctx := context.Background()
	_, err := f.coord.RefreshPlan(ctx, "AAPL", cache.SourceUser)
	require.NoError(t, err)
	_, err = f.coord.RefreshPlan(ctx, "MSFT", cache.SourceUser)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour) // both plans now stale
	_, err = f.coord.RefreshPlan(ctx, "AAPL", cache.SourcePageView)
	require.NoError(t, err)
	require.Equal(t, 3, f.fetcher.calls)

	f.clock.Advance(5 * time.Hour)

	orch := f.orchestrator("plan", func(ctx context.Context, symbol string) error {
		_, err := f.coord.RefreshPlan(ctx, symbol, cache.SourceScheduled)
		return err
	})
	job := NewPlanRefreshJob(f.store, orch, f.history, 1, time.Hour, f.clock, zerolog.Nop())

	assert.Equal(t, "plan_refresh", job.Name())
	require.NoError(t, job.Run())

	// Hot list of one: only the most-regenerated plan is refreshed.
	assert.Equal(t, 4, f.fetcher.calls)

	entry, err := f.store.Get(cache.PlanKey("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, cache.SourceScheduled, entry.Source)

	records, err := f.history.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "plan", records[0].Kind)
	assert.Equal(t, 1, records[0].Attempted)
}

func TestPlanRefreshJobRecordsIncompleteRun(t *testing.T) {
	f := newJobFixture(t)

	ctx := context.Background()
	_, err := f.coord.RefreshPlan(ctx, "AAPL", cache.SourceUser)
	require.NoError(t, err)
	_, err = f.coord.RefreshPlan(ctx, "MSFT", cache.SourceUser)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Hour)

	// Single-item batches with a window too small for a second batch: the
	// run stops at the first batch boundary.
	orch := refresh.NewOrchestrator("plan", func(ctx context.Context, symbol string) error {
		_, err := f.coord.RefreshPlan(ctx, symbol, cache.SourceScheduled)
		return err
	}, refresh.OrchestratorConfig{
		BatchSize:       1,
		InterItemDelay:  time.Second,
		InterBatchDelay: 5 * time.Second,
		AvgItemTime:     3 * time.Second,
	}, f.clock, zerolog.Nop())
	job := NewPlanRefreshJob(f.store, orch, f.history, 2, time.Second, f.clock, zerolog.Nop())

	require.NoError(t, job.Run())

	records, err := f.history.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1, "a truncated run is still recorded")
	assert.Equal(t, "plan", records[0].Kind)
	assert.False(t, records[0].Complete)
	assert.Equal(t, 1, records[0].Attempted)
}

func TestPlanRefreshJobNothingCached(t *testing.T) {
	f := newJobFixture(t)

	orch := f.orchestrator("plan", func(ctx context.Context, symbol string) error {
		_, err := f.coord.RefreshPlan(ctx, symbol, cache.SourceScheduled)
		return err
	})
	job := NewPlanRefreshJob(f.store, orch, f.history, 10, time.Hour, f.clock, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, f.fetcher.calls)
}

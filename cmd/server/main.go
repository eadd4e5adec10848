// Package main is the entry point for SwingScan, a swing-trade screening
// server. It refreshes market data through a rate-limited batch pipeline,
// scores symbols for actionable setups, derives trade plans, and serves
// both from a local cache so the UI never waits on the upstream provider.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/clients/marketfeed"
	"github.com/swingscan/swingscan/internal/clock"
	"github.com/swingscan/swingscan/internal/config"
	"github.com/swingscan/swingscan/internal/database"
	"github.com/swingscan/swingscan/internal/domain"
	"github.com/swingscan/swingscan/internal/ratelimit"
	"github.com/swingscan/swingscan/internal/refresh"
	"github.com/swingscan/swingscan/internal/retry"
	"github.com/swingscan/swingscan/internal/scheduler"
	"github.com/swingscan/swingscan/internal/server"
	"github.com/swingscan/swingscan/internal/universe"
	"github.com/swingscan/swingscan/pkg/logger"
)

// coreListings is the curated fallback universe, used when the provider's
// listings endpoint is unavailable so scheduled sweeps never run empty.
var coreListings = []domain.Listing{
	{Symbol: "AAPL", DisplayName: "Apple Inc."},
	{Symbol: "MSFT", DisplayName: "Microsoft Corp."},
	{Symbol: "NVDA", DisplayName: "NVIDIA Corp."},
	{Symbol: "AMZN", DisplayName: "Amazon.com Inc."},
	{Symbol: "GOOGL", DisplayName: "Alphabet Inc."},
	{Symbol: "META", DisplayName: "Meta Platforms Inc."},
	{Symbol: "TSLA", DisplayName: "Tesla Inc."},
	{Symbol: "AMD", DisplayName: "Advanced Micro Devices Inc."},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting SwingScan")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "cache.db"),
		Name: "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer db.Close()

	clk := clock.Real{}

	store, err := cache.NewStore(db.Conn(), clk, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache store")
	}

	history, err := refresh.NewHistory(db.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run history")
	}

	// Upstream plumbing: provider client, call budget, retry policy.
	feed := marketfeed.NewClient(marketfeed.Config{
		BaseURL:   cfg.FeedBaseURL,
		APIKey:    cfg.FeedAPIKey,
		CostUnits: cfg.FetchCostUnits,
	}, log)
	limiter := ratelimit.New(cfg.MaxCallsPerWindow, cfg.WindowDuration, clk, log)
	policy := retry.NewPolicy(cfg.RetryAttempts, cfg.RetryDelay, clk, log)

	coordinator := refresh.NewCoordinator(store, feed, limiter, policy, refresh.Config{
		PlanMaxAge:     cfg.PlanMaxAge,
		ScreenerMaxAge: cfg.ScreenerMaxAge,
		EntryTTL:       cfg.EntryTTL,
	}, clk, log)

	universeSvc := universe.NewService([]universe.Source{
		feed,
		universe.NewStaticSource("core", coreListings),
	}, log)

	orchCfg := refresh.OrchestratorConfig{
		BatchSize:       cfg.BatchSize,
		InterItemDelay:  cfg.InterItemDelay,
		InterBatchDelay: cfg.InterBatchDelay,
		AvgItemTime:     cfg.AvgItemTime,
	}
	screenerOrch := refresh.NewOrchestrator("screener", func(ctx context.Context, symbol string) error {
		_, err := coordinator.RefreshScreener(ctx, symbol, cache.SourceScheduled)
		return err
	}, orchCfg, clk, log)
	planOrch := refresh.NewOrchestrator("plan", func(ctx context.Context, symbol string) error {
		_, err := coordinator.RefreshPlan(ctx, symbol, cache.SourceScheduled)
		return err
	}, orchCfg, clk, log)

	screenerJob := scheduler.NewScreenerRefreshJob(universeSvc, screenerOrch, history, cfg.ScreenerRunWindow, clk, log)
	planJob := scheduler.NewPlanRefreshJob(store, planOrch, history, cfg.HotListSize, cfg.PlanRunWindow, clk, log)
	sweepJob := cache.NewSweepJob(store, time.Duration(cfg.RetentionDays)*24*time.Hour, log)

	sched := scheduler.New(log)
	for _, reg := range []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.ScreenerSchedule, screenerJob},
		{cfg.PlanSchedule, planJob},
		{cfg.SweepSchedule, sweepJob},
	} {
		if err := sched.AddJob(reg.schedule, reg.job); err != nil {
			log.Fatal().Err(err).Str("job", reg.job.Name()).Msg("Failed to register job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Coordinator: coordinator,
		Store:       store,
		History:     history,
	})
	srv.SetJobs(screenerJob, planJob, sweepJob)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

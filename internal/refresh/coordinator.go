// Package refresh orchestrates cache refreshes: the coordinator decides
// whether a key needs refreshing, funnels the rate-limited fetch through the
// retry policy and the in-flight gate, and writes the derived payload
// through the cache store. Every refresh trigger in the system (user action,
// scheduler, page view) goes through the coordinator.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/clock"
	"github.com/swingscan/swingscan/internal/domain"
	"github.com/swingscan/swingscan/internal/ratelimit"
	"github.com/swingscan/swingscan/internal/retry"
	"github.com/swingscan/swingscan/internal/screener"
	"github.com/swingscan/swingscan/internal/tradeplan"
)

// Outcome is the result a refresh caller receives. All concurrent callers
// for the same key observe the same outcome.
type Outcome struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	BasePrice float64         `json:"base_price"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updated_at"`
	Refreshed bool            `json:"refreshed"` // false when the cached entry was fresh enough
	Degraded  bool            `json:"degraded"`  // true when this is a stale fallback after a failed fetch
}

// Config holds the coordinator's freshness settings.
type Config struct {
	PlanMaxAge     time.Duration
	ScreenerMaxAge time.Duration
	EntryTTL       time.Duration
}

// Coordinator is the single entry point for all cache refreshes. It owns the
// in-flight registry, so at most one refresh per key executes at any instant
// across the whole process.
type Coordinator struct {
	store    *cache.Store
	fetcher  domain.SeriesFetcher
	limiter  *ratelimit.Limiter
	retry    retry.Policy
	inflight *cache.InFlight[*Outcome]
	cfg      Config
	clock    clock.Clock
	log      zerolog.Logger
}

// NewCoordinator creates a refresh coordinator.
func NewCoordinator(
	store *cache.Store,
	fetcher domain.SeriesFetcher,
	limiter *ratelimit.Limiter,
	retryPolicy retry.Policy,
	cfg Config,
	clk clock.Clock,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		store:    store,
		fetcher:  fetcher,
		limiter:  limiter,
		retry:    retryPolicy,
		inflight: cache.NewInFlight[*Outcome](),
		cfg:      cfg,
		clock:    clk,
		log:      log.With().Str("service", "refresh").Logger(),
	}
}

// RefreshPlan refreshes the trade-plan entry for a symbol if it is stale.
// source tags which code path asked (cache.SourceUser, SourceScheduled,
// SourcePageView).
func (c *Coordinator) RefreshPlan(ctx context.Context, symbol, source string) (*Outcome, error) {
	return c.refresh(ctx, cache.PlanKey(symbol), symbol, source, c.cfg.PlanMaxAge, buildPlanPayload)
}

// RefreshScreener refreshes the screener row for a symbol if it is stale.
func (c *Coordinator) RefreshScreener(ctx context.Context, symbol, source string) (*Outcome, error) {
	return c.refresh(ctx, cache.ScreenerKey(symbol), symbol, source, c.cfg.ScreenerMaxAge, buildScreenerPayload)
}

// payloadBuilder turns a fetched series into the cache payload for one path.
type payloadBuilder func(symbol string, series domain.Series) (interface{}, float64, error)

// buildPlanPayload derives the trade-plan payload.
func buildPlanPayload(symbol string, series domain.Series) (interface{}, float64, error) {
	plan, err := tradeplan.Build(symbol, series)
	if err != nil {
		return nil, 0, err
	}
	return plan, plan.BasePrice, nil
}

// buildScreenerPayload derives the screener-row payload. A symbol that does
// not pass the candidate gate still produces a row; insufficient data
// downgrades it to not-a-candidate rather than failing the refresh.
func buildScreenerPayload(symbol string, series domain.Series) (interface{}, float64, error) {
	result := screener.Score(screener.BuildInput(symbol, series))
	basePrice := 0.0
	if latest := series.Latest(); latest != nil {
		basePrice = latest.Close
	}
	return result, basePrice, nil
}

// refresh implements the shared staleness + dedup + fetch + write-through
// flow. On a failed fetch it returns the last-known cached value as a
// degraded outcome together with the fetch error, so serving layers can
// degrade gracefully while batch callers still see the failure.
func (c *Coordinator) refresh(
	ctx context.Context,
	key, symbol, source string,
	maxAge time.Duration,
	build payloadBuilder,
) (*Outcome, error) {
	stale, err := c.store.IsStale(key, maxAge)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Staleness check failed, assuming stale")
		stale = true
	}
	if !stale {
		entry, err := c.store.Get(key)
		if err == nil && entry != nil {
			return outcomeFromEntry(entry, false, false), nil
		}
		c.log.Warn().Err(err).Str("key", key).Msg("Fresh entry unreadable, refreshing")
	}

	// Dedup gate: only the owner fetches, everyone else awaits its outcome.
	flight, owner := c.inflight.Begin(key)
	if !owner {
		c.log.Debug().Str("key", key).Msg("Refresh already in flight, awaiting existing handle")
		return flight.Wait(ctx)
	}

	// The registry entry is removed on every path, success, failure, or
	// panic, so a crashed refresh cannot permanently block the key.
	var outcome *Outcome
	var refreshErr error
	defer func() { c.inflight.End(key, outcome, refreshErr) }()

	outcome, refreshErr = c.doRefresh(ctx, key, symbol, source, build)
	return outcome, refreshErr
}

// doRefresh performs the rate-limited fetch and write-through for a key the
// caller owns.
func (c *Coordinator) doRefresh(
	ctx context.Context,
	key, symbol, source string,
	build payloadBuilder,
) (*Outcome, error) {
	series, err := retry.Do(ctx, c.retry, "fetch "+symbol, func(ctx context.Context) (domain.Series, error) {
		// Each attempt consumes upstream rate-limit units, so admission
		// control and accounting sit inside the retry loop.
		c.limiter.WaitIfNeeded()
		c.limiter.RecordCalls(c.fetcher.CostUnits())
		return c.fetcher.FetchSeries(ctx, symbol)
	})
	if err != nil {
		return c.degrade(key, err)
	}

	payload, basePrice, err := build(symbol, series)
	if err != nil {
		return c.degrade(key, fmt.Errorf("failed to build payload for %s: %w", key, err))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", key, err)
	}

	// Store-write failures are logged and swallowed: the caller already has
	// the fresh in-memory value, the cache merely stays stale for this key.
	meta := cache.WriteMeta{BasePrice: basePrice, Source: source, TTL: c.cfg.EntryTTL}
	if err := c.store.Write(key, payload, meta); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Cache write failed, serving in-memory value")
	}

	c.log.Debug().Str("key", key).Str("source", source).Msg("Refreshed cache entry")

	return &Outcome{
		Key:       key,
		Payload:   data,
		BasePrice: basePrice,
		Source:    source,
		UpdatedAt: c.clock.Now(),
		Refreshed: true,
	}, nil
}

// degrade falls back to the last-known cached value after a failed refresh.
// When a cached entry exists the outcome carries it flagged as degraded;
// the fetch error is returned either way.
func (c *Coordinator) degrade(key string, cause error) (*Outcome, error) {
	entry, getErr := c.store.Get(key)
	if getErr != nil || entry == nil {
		return nil, cause
	}

	c.log.Warn().Err(cause).Str("key", key).Msg("Refresh failed, serving cached data")
	return outcomeFromEntry(entry, false, true), cause
}

func outcomeFromEntry(entry *cache.Entry, refreshed, degraded bool) *Outcome {
	return &Outcome{
		Key:       entry.Key,
		Payload:   entry.Payload,
		BasePrice: entry.BasePrice,
		Source:    entry.Source,
		UpdatedAt: entry.UpdatedAt,
		Refreshed: refreshed,
		Degraded:  degraded,
	}
}

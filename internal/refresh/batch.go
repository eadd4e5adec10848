package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/clock"
)

// ProcessFunc refreshes one work item. The orchestrator treats a returned
// error as an item failure, records it, and moves on.
type ProcessFunc func(ctx context.Context, symbol string) error

// ItemResult records the outcome of one attempted item.
type ItemResult struct {
	Symbol  string `json:"symbol"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Report summarizes one batch run. Every attempted item has exactly one
// result record; Complete is false when the run stopped early at a batch
// boundary because the deadline was approaching.
type Report struct {
	RunID      string       `json:"run_id"`
	Kind       string       `json:"kind"`
	Results    []ItemResult `json:"results"`
	Attempted  int          `json:"attempted"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Complete   bool         `json:"complete"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// OrchestratorConfig holds batch pacing parameters.
type OrchestratorConfig struct {
	BatchSize       int
	InterItemDelay  time.Duration
	InterBatchDelay time.Duration
	// AvgItemTime is the static per-item estimate used for the deadline
	// check. A tunable, not load-bearing: the check only decides whether
	// the next whole batch is likely to fit.
	AvgItemTime time.Duration
}

// Orchestrator walks a symbol list through rate-limited refreshes in fixed
// batches. Items run strictly sequentially in the order supplied; only a
// deadline can stop the run early, and only at a batch boundary.
type Orchestrator struct {
	process ProcessFunc
	kind    string
	cfg     OrchestratorConfig
	clock   clock.Clock
	log     zerolog.Logger
}

// NewOrchestrator creates a batch orchestrator around a per-item processor.
// kind labels the run in reports and run history (e.g. "screener", "plan").
func NewOrchestrator(kind string, process ProcessFunc, cfg OrchestratorConfig, clk clock.Clock, log zerolog.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Orchestrator{
		process: process,
		kind:    kind,
		cfg:     cfg,
		clock:   clk,
		log:     log.With().Str("service", "batch").Str("kind", kind).Logger(),
	}
}

// Run processes symbols to completion or stops gracefully before the
// deadline. A zero deadline disables the deadline check. The report holds
// one result per attempted item; an item failure never aborts the run.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, deadline time.Time) Report {
	report := Report{
		RunID:     uuid.New().String(),
		Kind:      o.kind,
		StartedAt: o.clock.Now(),
		Complete:  true,
	}

	batches := partition(symbols, o.cfg.BatchSize)

	o.log.Info().
		Str("run_id", report.RunID).
		Int("symbols", len(symbols)).
		Int("batches", len(batches)).
		Msg("Starting batch run")

	for i, batch := range batches {
		for _, symbol := range batch {
			result := ItemResult{Symbol: symbol, Success: true}
			if err := o.process(ctx, symbol); err != nil {
				result.Success = false
				result.Error = err.Error()
				report.Failed++
				o.log.Warn().Err(err).Str("symbol", symbol).Msg("Item failed after retries")
			} else {
				report.Succeeded++
			}
			report.Results = append(report.Results, result)

			// Smooth burstiness against the provider.
			o.clock.Sleep(o.cfg.InterItemDelay)
		}

		if i == len(batches)-1 {
			break
		}

		if !deadline.IsZero() {
			estimate := o.cfg.InterBatchDelay + time.Duration(o.cfg.BatchSize)*o.cfg.AvgItemTime
			if o.clock.Now().Add(estimate).After(deadline) {
				o.log.Warn().
					Str("run_id", report.RunID).
					Int("processed", len(report.Results)).
					Int("remaining", len(symbols)-len(report.Results)).
					Msg("Deadline approaching, stopping at batch boundary")
				report.Complete = false
				break
			}
		}

		o.clock.Sleep(o.cfg.InterBatchDelay)
	}

	report.Attempted = len(report.Results)
	report.FinishedAt = o.clock.Now()

	o.log.Info().
		Str("run_id", report.RunID).
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Bool("complete", report.Complete).
		Msg("Batch run finished")

	return report
}

// partition splits symbols into consecutive batches of size n, preserving
// order.
func partition(symbols []string, n int) [][]string {
	var batches [][]string
	for start := 0; start < len(symbols); start += n {
		end := start + n
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}

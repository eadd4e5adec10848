package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swingscan/swingscan/internal/clock"
)

func testOrchestrator(process ProcessFunc) (*Orchestrator, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC))
	o := NewOrchestrator("screener", process, OrchestratorConfig{
		BatchSize:       2,
		InterItemDelay:  time.Second,
		InterBatchDelay: 5 * time.Second,
		AvgItemTime:     3 * time.Second,
	}, clk, zerolog.Nop())
	return o, clk
}

func TestRunProcessesAllItemsInOrder(t *testing.T) {
	var processed []string
	o, _ := testOrchestrator(func(ctx context.Context, symbol string) error {
		processed = append(processed, symbol)
		return nil
	})

	symbols := []string{"AAPL", "MSFT", "NVDA", "TSLA", "AMD"}
	report := o.Run(context.Background(), symbols, time.Time{})

	assert.True(t, report.Complete)
	assert.Equal(t, len(symbols), report.Attempted)
	assert.Equal(t, len(symbols), report.Succeeded)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Results, len(symbols))

	// FIFO within the provided list
	assert.Equal(t, symbols, processed)
	for i, r := range report.Results {
		assert.Equal(t, symbols[i], r.Symbol)
		assert.True(t, r.Success)
	}
	assert.NotEmpty(t, report.RunID)
}

func TestRunItemFailureDoesNotAbort(t *testing.T) {
	o, _ := testOrchestrator(func(ctx context.Context, symbol string) error {
		if symbol == "BAD" {
			return errors.New("fetch failed after 3 attempts")
		}
		return nil
	})

	report := o.Run(context.Background(), []string{"AAPL", "BAD", "NVDA"}, time.Time{})

	assert.True(t, report.Complete)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Results, 3)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, "fetch failed")
	assert.True(t, report.Results[2].Success, "items after a failure still run")
}

func TestRunStopsAtBatchBoundaryBeforeDeadline(t *testing.T) {
	o, clk := testOrchestrator(func(ctx context.Context, symbol string) error {
		return nil
	})

	// Batch of 2 takes 2s of inter-item delay; the next batch is estimated
	// at 5s + 2x3s = 11s. A deadline 10s out is unreachable after the first
	// batch, so the run truncates there.
	deadline := clk.Now().Add(10 * time.Second)
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	report := o.Run(context.Background(), symbols, deadline)

	assert.False(t, report.Complete)
	assert.Equal(t, 2, report.Attempted, "stops after a whole batch, never mid-item")
	assert.Less(t, len(report.Results), len(symbols))
	assert.Zero(t, report.Attempted%2, "only whole batches complete")
}

func TestRunGenerousDeadlineCompletes(t *testing.T) {
	o, clk := testOrchestrator(func(ctx context.Context, symbol string) error {
		return nil
	})

	deadline := clk.Now().Add(time.Hour)
	report := o.Run(context.Background(), []string{"A", "B", "C", "D", "E"}, deadline)

	assert.True(t, report.Complete)
	assert.Equal(t, 5, report.Attempted)
}

func TestRunEmptyList(t *testing.T) {
	o, _ := testOrchestrator(func(ctx context.Context, symbol string) error {
		t.Fatal("process must not be called")
		return nil
	})

	report := o.Run(context.Background(), nil, time.Time{})

	assert.True(t, report.Complete)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, report.Results)
}

func TestPartition(t *testing.T) {
	batches := partition([]string{"A", "B", "C", "D", "E"}, 2)

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"A", "B"}, batches[0])
	assert.Equal(t, []string{"C", "D"}, batches[1])
	assert.Equal(t, []string{"E"}, batches[2])
}

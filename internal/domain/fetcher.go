package domain

import "context"

// SeriesFetcher is the abstract market-data capability consumed by the
// refresh pipeline. Implementations are expected to be flaky (rate limits,
// transient 5xx, parse failures); callers wrap invocations in a retry policy.
type SeriesFetcher interface {
	// FetchSeries returns the daily price history for a symbol.
	FetchSeries(ctx context.Context, symbol string) (Series, error)

	// CostUnits reports how many rate-limit units one FetchSeries call
	// consumes against the upstream provider.
	CostUnits() int
}

// Package retry wraps fallible operations with a bounded retry loop.
// Upstream data-provider calls fail transiently (rate limits, 5xx, parse
// errors); a small fixed-delay retry absorbs most of those without risking
// runaway loops.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/clock"
)

// Policy holds the retry budget and inter-attempt delay for one call site.
// Both are configurable per call site: batch-mode retries must stay within
// the run's overall deadline budget.
type Policy struct {
	MaxRetries int           // retries after the first attempt
	Delay      time.Duration // fixed wait between attempts
	Clock      clock.Clock
	Log        zerolog.Logger
}

// NewPolicy creates a retry policy with the given budget and delay.
func NewPolicy(maxRetries int, delay time.Duration, clk clock.Clock, log zerolog.Logger) Policy {
	return Policy{
		MaxRetries: maxRetries,
		Delay:      delay,
		Clock:      clk,
		Log:        log.With().Str("component", "retry").Logger(),
	}
}

// Do executes op, retrying on failure until the budget is exhausted.
// The retry budget is an explicit loop invariant, not recursion. The last
// failure is returned as a value; nothing is thrown past this boundary.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s canceled before attempt %d: %w", name, attempt, err)
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt < attempts {
			p.Log.Warn().
				Err(err).
				Str("operation", name).
				Int("attempt", attempt).
				Int("remaining", attempts-attempt).
				Msg("Operation failed, retrying after delay")
			p.Clock.Sleep(p.Delay)
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

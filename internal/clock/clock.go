// Package clock abstracts wall-clock access so time-dependent components
// (rate limiter, retry policy, batch orchestrator) can be tested with a
// simulated clock instead of real sleeps.
package clock

import "time"

// Clock provides the current time and timer-based suspension.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the production clock backed by the time package.
type Real struct{}

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// Sleep suspends the caller for the given duration.
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Package ratelimit implements sliding-window admission control for the
// market-feed provider. The limiter blocks callers until a call is safe to
// make; it never rejects or drops a call.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/clock"
)

// Limiter enforces a fixed call budget per wall-clock window. All mutation
// is mutex-protected: refreshes triggered from HTTP handlers and scheduler
// jobs share one instance across goroutines.
type Limiter struct {
	mu           sync.Mutex
	callCount    int
	windowStart  time.Time
	maxCalls     int
	window       time.Duration
	safetyBuffer time.Duration
	clock        clock.Clock
	log          zerolog.Logger
}

// New creates a limiter allowing maxCalls units per window.
func New(maxCalls int, window time.Duration, clk clock.Clock, log zerolog.Logger) *Limiter {
	return &Limiter{
		callCount:    0,
		windowStart:  clk.Now(),
		maxCalls:     maxCalls,
		window:       window,
		safetyBuffer: 2 * time.Second,
		clock:        clk,
		log:          log.With().Str("component", "ratelimit").Logger(),
	}
}

// WaitIfNeeded suspends the caller until one more call fits in the budget.
// If the current window has expired the counter resets; if the budget is
// exhausted the caller sleeps out the remainder of the window plus a safety
// buffer before the counter resets.
func (l *Limiter) WaitIfNeeded() {
	for {
		l.mu.Lock()
		now := l.clock.Now()

		if now.Sub(l.windowStart) >= l.window {
			l.callCount = 0
			l.windowStart = now
		}

		if l.callCount < l.maxCalls {
			l.mu.Unlock()
			return
		}

		waitTime := l.window - now.Sub(l.windowStart) + l.safetyBuffer
		l.mu.Unlock()

		l.log.Debug().
			Dur("wait", waitTime).
			Int("budget", l.maxCalls).
			Msg("Rate limit budget exhausted, waiting for window reset")
		l.clock.Sleep(waitTime)
		// Re-check after sleeping; the expired window resets on the next pass.
	}
}

// RecordCalls declares that n rate-limit units were just consumed.
func (l *Limiter) RecordCalls(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callCount += n
}

// Remaining returns how many units are left in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.clock.Now().Sub(l.windowStart) >= l.window {
		return l.maxCalls
	}
	remaining := l.maxCalls - l.callCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

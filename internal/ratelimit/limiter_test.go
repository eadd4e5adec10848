package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swingscan/swingscan/internal/clock"
)

func newTestLimiter(maxCalls int, window time.Duration) (*Limiter, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC))
	l := New(maxCalls, window, clk, zerolog.Nop())
	return l, clk
}

func TestWaitIfNeededUnderBudget(t *testing.T) {
	l, clk := newTestLimiter(10, time.Minute)

	for i := 0; i < 10; i++ {
		l.WaitIfNeeded()
		l.RecordCalls(1)
	}

	// No sleeps while under budget
	assert.Equal(t, 0, clk.SleepCount())
	assert.Equal(t, 0, l.Remaining())
}

func TestWaitIfNeededBlocksWhenExhausted(t *testing.T) {
	l, clk := newTestLimiter(10, 1000*time.Millisecond)

	// 15 sequential calls against a budget of 10 per second: the 11th call
	// must wait out the remainder of the window, so total simulated time
	// is at least the window duration.
	start := clk.Now()
	for i := 0; i < 15; i++ {
		l.WaitIfNeeded()
		l.RecordCalls(1)
	}
	elapsed := clk.Now().Sub(start)

	assert.GreaterOrEqual(t, elapsed, 1000*time.Millisecond)
	assert.GreaterOrEqual(t, clk.SleepCount(), 1)
}

func TestWindowResetAllowsNewBudget(t *testing.T) {
	l, clk := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		l.WaitIfNeeded()
		l.RecordCalls(1)
	}
	require.Equal(t, 0, l.Remaining())

	clk.Advance(time.Minute + time.Second)

	l.WaitIfNeeded()
	assert.Equal(t, 0, clk.SleepCount(), "expired window should reset without sleeping")
	assert.Equal(t, 5, l.Remaining())
}

func TestRollingWindowBound(t *testing.T) {
	const (
		maxCalls = 10
		window   = time.Minute
	)
	l, clk := newTestLimiter(maxCalls, window)

	// Drive 50 calls through the limiter and record each call's simulated
	// timestamp. No window of `window` duration may contain more than
	// maxCalls recorded calls.
	var stamps []time.Time
	for i := 0; i < 50; i++ {
		l.WaitIfNeeded()
		l.RecordCalls(1)
		stamps = append(stamps, clk.Now())
	}

	for i := range stamps {
		count := 0
		for j := i; j < len(stamps); j++ {
			if stamps[j].Sub(stamps[i]) < window {
				count++
			}
		}
		assert.LessOrEqual(t, count, maxCalls,
			"window starting at call %d holds %d calls", i, count)
	}
}

func TestRecordCallsMultipleUnits(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	// One symbol refresh consumes 5 units
	l.WaitIfNeeded()
	l.RecordCalls(5)

	assert.Equal(t, 45, l.Remaining())
}

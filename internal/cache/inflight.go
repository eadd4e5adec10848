package cache

import (
	"context"
	"sync"
)

// Flight is the pending-operation handle for one in-flight refresh. The
// owner completes it exactly once; any number of waiters observe the same
// outcome.
type Flight[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the flight completes or the context is canceled, and
// returns the flight's outcome.
func (f *Flight[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// InFlight deduplicates concurrent refreshes per key: a key is present if
// and only if a refresh for it is currently executing. Mutation is
// mutex-protected; refreshes arrive concurrently from HTTP handlers and
// scheduler jobs.
type InFlight[T any] struct {
	mu      sync.Mutex
	flights map[string]*Flight[T]
}

// NewInFlight creates an empty registry.
func NewInFlight[T any]() *InFlight[T] {
	return &InFlight[T]{flights: make(map[string]*Flight[T])}
}

// Begin atomically claims the refresh for a key. The returned bool reports
// ownership: true means the caller owns the refresh and must call End when
// finished (in a deferred call, so a failed refresh cannot block the key
// permanently); false means another refresh is already executing and the
// caller must Wait on the returned flight instead of starting new work.
func (r *InFlight[T]) Begin(key string) (*Flight[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.flights[key]; ok {
		return existing, false
	}

	flight := &Flight[T]{done: make(chan struct{})}
	r.flights[key] = flight
	return flight, true
}

// End records the refresh outcome, releases all waiters, and removes the key
// from the registry.
func (r *InFlight[T]) End(key string, value T, err error) {
	r.mu.Lock()
	flight, ok := r.flights[key]
	delete(r.flights, key)
	r.mu.Unlock()

	if !ok {
		return
	}

	flight.value = value
	flight.err = err
	close(flight.done)
}

// Len reports how many refreshes are currently executing.
func (r *InFlight[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}

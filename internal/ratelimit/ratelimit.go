// Package ratelimit implements a fixed-window per-caller rate limiter. Each
// caller gets a counter and a window start; the counter resets when the
// window elapses, and a rejected request never advances the counter.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Counter is the per-caller admission state.
type Counter struct {
	Count       int
	WindowStart time.Time
}

// CounterStore persists counters across restarts. Implementations must be
// safe for concurrent use.
type CounterStore interface {
	LoadCounters(ctx context.Context) (map[string]Counter, error)
	SaveCounter(ctx context.Context, callerID string, c Counter) error
}

// Limiter admits at most maxRequests requests per caller per window. All
// counters share one lock; admission is a handful of map operations, so
// contention stays low even with many callers.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*Counter
	max      int
	window   time.Duration
	store    CounterStore
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Limiter. When store is non-nil, previously persisted counters
// are loaded so restarting the process does not reset anyone's window, and
// every state change is written back through it.
func New(maxRequests int, window time.Duration, store CounterStore) (*Limiter, error) {
	l := &Limiter{
		counters: make(map[string]*Counter),
		max:      maxRequests,
		window:   window,
		store:    store,
		now:      time.Now,
		logger:   slog.Default().With("component", "rate-limiter"),
	}
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		loaded, err := store.LoadCounters(ctx)
		if err != nil {
			return nil, err
		}
		for id, c := range loaded {
			counter := c
			l.counters[id] = &counter
		}
		l.logger.Info("rate counters restored", "callers", len(loaded))
	}
	go l.cleanup()
	return l, nil
}

// Allow reports whether the caller may issue another request inside the
// current window. A rejection leaves the counter untouched. The counter map
// is only touched under the lock; the write-through to the store happens
// after release so storage latency never serialises other callers.
func (l *Limiter) Allow(callerID string) bool {
	l.mu.Lock()
	now := l.now()
	var snapshot Counter
	admitted := false

	c, exists := l.counters[callerID]
	switch {
	case !exists:
		c = &Counter{Count: 1, WindowStart: now}
		l.counters[callerID] = c
		snapshot, admitted = *c, true
	case now.Sub(c.WindowStart) >= l.window:
		c.Count = 1
		c.WindowStart = now
		snapshot, admitted = *c, true
	case c.Count < l.max:
		c.Count++
		snapshot, admitted = *c, true
	}
	l.mu.Unlock()

	if admitted {
		l.persist(callerID, snapshot)
	}
	return admitted
}

// Remaining returns how many requests the caller has left in the current
// window.
func (l *Limiter) Remaining(callerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.counters[callerID]
	if !exists || l.now().Sub(c.WindowStart) >= l.window {
		return l.max
	}
	remaining := l.max - c.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// persist writes a counter through to the store. Failures are logged and do
// not affect the admission decision already made.
func (l *Limiter) persist(callerID string, c Counter) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.store.SaveCounter(ctx, callerID, c); err != nil {
		l.logger.Error("failed to persist rate counter", "caller_id", callerID, "error", err)
	}
}

// cleanup periodically drops counters whose window expired long ago so the
// map does not grow without bound.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := l.now().Add(-2 * l.window)
		for id, c := range l.counters {
			if c.WindowStart.Before(cutoff) {
				delete(l.counters, id)
			}
		}
		l.mu.Unlock()
	}
}

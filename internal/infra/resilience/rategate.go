package resilience

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the rate gate.
type Clock interface {
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// KeyedMutex hands out one mutex per key. Keys are never evicted; the set of
// keys is expected to stay small (one per user or credential).
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock locks key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// RateGate enforces a minimum interval between dispatches per key.
// Callers for the same key are serialized; different keys never wait on
// each other.
type RateGate struct {
	interval time.Duration
	clock    Clock
	locks    *KeyedMutex

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateGate creates a gate. A nil clock means the wall clock.
func NewRateGate(interval time.Duration, clock Clock) *RateGate {
	if clock == nil {
		clock = SystemClock
	}
	return &RateGate{
		interval: interval,
		clock:    clock,
		locks:    NewKeyedMutex(),
		last:     make(map[string]time.Time),
	}
}

// Interval is the enforced gap.
func (g *RateGate) Interval() time.Duration {
	return g.interval
}

// Do waits until key may dispatch, records the dispatch instant and runs fn.
// The instant is recorded whatever fn returns. It returns how long the caller
// waited; on context cancellation fn is not run.
func (g *RateGate) Do(ctx context.Context, key string, fn func() error) (time.Duration, error) {
	unlock := g.locks.Lock(key)
	defer unlock()

	waited, err := g.wait(ctx, key)
	if err != nil {
		return waited, err
	}

	g.Mark(key)
	return waited, fn()
}

func (g *RateGate) wait(ctx context.Context, key string) (time.Duration, error) {
	g.mu.Lock()
	last, ok := g.last[key]
	g.mu.Unlock()
	if !ok {
		return 0, nil
	}

	delay := g.interval - g.clock.Now().Sub(last)
	if delay <= 0 {
		return 0, nil
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-g.clock.After(delay):
		return delay, nil
	}
}

// Mark records a dispatch for key now, without waiting.
func (g *RateGate) Mark(key string) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[key] = now
}

// Last returns the last recorded dispatch for key.
func (g *RateGate) Last(key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.last[key]
	return t, ok
}

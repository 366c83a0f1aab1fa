package resilience_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/infra/resilience"
)

// fakeClock advances virtual time whenever a caller waits on it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateGate_SecondDispatchWaitsFullInterval(t *testing.T) {
	clock := newFakeClock()
	gate := resilience.NewRateGate(60*time.Second, clock)

	var dispatches []time.Time
	record := func() error {
		dispatches = append(dispatches, clock.Now())
		return nil
	}

	if _, err := gate.Do(context.Background(), "cred-a", record); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)
	waited, err := gate.Do(context.Background(), "cred-a", record)
	if err != nil {
		t.Fatal(err)
	}

	if waited != 50*time.Second {
		t.Errorf("expected 50s wait, got %s", waited)
	}
	if gap := dispatches[1].Sub(dispatches[0]); gap < 60*time.Second {
		t.Errorf("expected dispatch gap >= 60s, got %s", gap)
	}
}

func TestRateGate_RecordsDispatchOnError(t *testing.T) {
	clock := newFakeClock()
	gate := resilience.NewRateGate(60*time.Second, clock)

	_, err := gate.Do(context.Background(), "cred-a", func() error { return errors.New("boom") })
	if err == nil {
		t.Fatal("expected fn error to be returned")
	}

	waited, _ := gate.Do(context.Background(), "cred-a", func() error { return nil })
	if waited != 60*time.Second {
		t.Errorf("expected full wait after failed dispatch, got %s", waited)
	}
}

func TestRateGate_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	gate := resilience.NewRateGate(60*time.Second, clock)

	if _, err := gate.Do(context.Background(), "cred-a", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	waited, err := gate.Do(context.Background(), "cred-b", func() error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if waited != 0 {
		t.Errorf("expected no wait for a different key, got %s", waited)
	}
}

func TestRateGate_MarkGatesNextCall(t *testing.T) {
	clock := newFakeClock()
	gate := resilience.NewRateGate(60*time.Second, clock)

	gate.Mark("cred-a")
	waited, _ := gate.Do(context.Background(), "cred-a", func() error { return nil })

	if waited != 60*time.Second {
		t.Errorf("expected mark to gate next dispatch, got %s", waited)
	}
}

func TestRateGate_WallClockGap(t *testing.T) {
	interval := 80 * time.Millisecond
	gate := resilience.NewRateGate(interval, nil)

	var mu sync.Mutex
	var dispatches []time.Time
	record := func() error {
		mu.Lock()
		dispatches = append(dispatches, time.Now())
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gate.Do(context.Background(), "cred-a", record)
		}()
	}
	wg.Wait()

	if len(dispatches) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(dispatches))
	}
	gap := dispatches[1].Sub(dispatches[0])
	if gap < interval-5*time.Millisecond {
		t.Errorf("expected gap >= %s, got %s", interval, gap)
	}
}

func TestRateGate_ContextCancelled(t *testing.T) {
	gate := resilience.NewRateGate(time.Hour, nil)
	gate.Mark("cred-a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	_, err := gate.Do(ctx, "cred-a", func() error {
		called = true
		return nil
	})

	if err == nil {
		t.Fatal("expected context error")
	}
	if called {
		t.Error("fn must not run after cancellation")
	}
}

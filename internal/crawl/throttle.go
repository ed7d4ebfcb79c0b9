package crawl

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces requests adaptively. The delay starts at the floor,
// widens under latency or error pressure, and decays back when the
// target responds quickly — but never below the floor.
type Throttle struct {
	mu    sync.Mutex
	delay time.Duration
	floor time.Duration
	max   time.Duration
	last  time.Time
}

// NewThrottle creates a throttle with the given floor and ceiling.
// A zero max disables the ceiling.
func NewThrottle(floor, max time.Duration) *Throttle {
	return &Throttle{
		delay: floor,
		floor: floor,
		max:   max,
	}
}

// Wait blocks until the current delay has elapsed since the previous
// Wait returned, or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	wait := t.delay - now.Sub(t.last)
	if wait < 0 {
		wait = 0
	}
	t.last = now.Add(wait)
	t.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Observe feeds back the outcome of a request. Failures and slow
// responses double the delay; fast successes decay it toward the floor.
func (t *Throttle) Observe(latency time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if failed || (t.delay > 0 && latency > 2*t.delay) {
		if t.delay <= 0 {
			t.delay = time.Second
		} else {
			t.delay *= 2
		}
		if t.max > 0 && t.delay > t.max {
			t.delay = t.max
		}
		return
	}

	t.delay = time.Duration(float64(t.delay) * 0.9)
	if t.delay < t.floor {
		t.delay = t.floor
	}
}

// Delay returns the current inter-request delay.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

package tagging

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 60 * time.Second

	backoffGrowth        = 2.0
	backoffDecay         = 0.5
	successesBeforeDecay = 3
)

// Backoff is the adaptive delay applied before provider calls. Rate limits
// double it up to max; every third consecutive success halves it, never
// below base. The delay is only slept while it is raised above base.
type Backoff struct {
	mu        sync.Mutex
	base      time.Duration
	max       time.Duration
	current   time.Duration
	successes int
}

func NewBackoff(base, ceiling time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if ceiling < base {
		ceiling = max(DefaultMaxBackoff, base)
	}
	return &Backoff{base: base, max: ceiling, current: base}
}

// Delay is the current delay.
func (b *Backoff) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Raised reports whether the delay is above base.
func (b *Backoff) Raised() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current > b.base
}

// OnRateLimit grows the delay, honoring a longer provider hint, and returns
// the new value.
func (b *Backoff) OnRateLimit(hint time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	next := time.Duration(float64(b.current) * backoffGrowth)
	if hint > next {
		next = hint
	}
	if next > b.max {
		next = b.max
	}
	b.current = next
	return next
}

// OnSuccess counts a success and decays the delay every third one in a row.
func (b *Backoff) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current <= b.base {
		b.successes = 0
		return
	}
	b.successes++
	if b.successes < successesBeforeDecay {
		return
	}
	b.successes = 0
	next := time.Duration(float64(b.current) * backoffDecay)
	if next < b.base {
		next = b.base
	}
	b.current = next
}

// Wait sleeps for the current delay when it is raised. It returns early
// with ctx.Err() on cancellation.
func (b *Backoff) Wait(ctx context.Context) error {
	if !b.Raised() {
		return ctx.Err()
	}
	timer := time.NewTimer(b.Delay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package ratelimit

import (
	"sync"
	"time"

	"github.com/gallerist/token-ingest/internal/adapter"
)

// HitCounter counts rate-limit hits across independent limiter instances
// within a fixed rolling window. It is the one piece of deliberately shared
// mutable state in the pipeline: every limiter owned by a concurrent ingestion
// session increments the same counter, coupling them under shared upstream
// pressure without a central scheduler.
//
// The counter has process-wide lifetime; the window resets independently of
// any single limiter's lifecycle.
type HitCounter struct {
	mu          sync.Mutex
	clock       adapter.Clock
	window      time.Duration
	windowStart time.Time
	hits        int
}

// NewHitCounter creates a shared hit counter with the given window
func NewHitCounter(clock adapter.Clock, window time.Duration) *HitCounter {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &HitCounter{
		clock:       clock,
		window:      window,
		windowStart: clock.Now(),
	}
}

// Increment records one rate-limit hit
func (c *HitCounter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	c.hits++
}

// CountInWindow returns the number of hits recorded in the current window
func (c *HitCounter) CountInWindow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.hits
}

func (c *HitCounter) rollLocked() {
	if c.clock.Since(c.windowStart) >= c.window {
		c.windowStart = c.clock.Now()
		c.hits = 0
	}
}

package game

import (
	"context"
	"sync"
	"time"
)

// IntervalClock runs tick on its own goroutine every interval until stopped.
type IntervalClock struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewIntervalClock creates a stopped clock. A non-positive interval falls back to TickPeriod.
func NewIntervalClock(interval time.Duration) *IntervalClock {
	if interval <= 0 {
		interval = TickPeriod
	}
	return &IntervalClock{interval: interval}
}

// Start cancels any previous task and begins a new one.
func (c *IntervalClock) Start(tick func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx, tick)
}

// Stop cancels the running task. It does not wait for the goroutine to exit.
func (c *IntervalClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *IntervalClock) loop(ctx context.Context, tick func()) {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			tick()
		}
	}
}

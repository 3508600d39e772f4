package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Coalescer debounces write requests: any number of Request calls within the
// window collapse into a single invocation of the write function, which always
// observes the latest in-memory state. A failed write is not dropped; the
// request stays pending and is retried on the next cycle.
type Coalescer struct {
	window time.Duration
	write  func() error

	mu      sync.Mutex
	pending bool
	kick    chan struct{}
}

// NewCoalescer builds a Coalescer around write with the given debounce window.
// Run must be started for writes to happen.
func NewCoalescer(window time.Duration, write func() error) *Coalescer {
	if window <= 0 {
		window = time.Second
	}
	return &Coalescer{
		window: window,
		write:  write,
		kick:   make(chan struct{}, 1),
	}
}

// Request marks the state dirty and schedules a write after the debounce
// window. Safe for concurrent use; never blocks.
func (c *Coalescer) Request() {
	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run services write requests until ctx is cancelled, then performs one final
// flush if a request is still pending so shutdown does not lose the last state.
func (c *Coalescer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return
		case <-c.kick:
		}
		// Debounce: absorb the burst before writing.
		select {
		case <-ctx.Done():
			c.flush()
			return
		case <-time.After(c.window):
		}
		c.flush()
	}
}

// flush performs the write if dirty. On failure the dirty flag is restored and
// a retry is scheduled, keeping the in-memory state authoritative.
func (c *Coalescer) flush() {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.mu.Unlock()

	if err := c.write(); err != nil {
		slog.Warn("coalesced write failed; will retry next cycle", slog.Any("err", err))
		c.mu.Lock()
		c.pending = true
		c.mu.Unlock()
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

package timeout

import (
	"sync"
	"time"
)

// EveryHandle identifies a periodic callback registered with CallEvery.
// Handles are never reused.
type EveryHandle uint64

type everyEntry struct {
	callback func()
	interval time.Duration
	lastRun  time.Time
	primed   bool
}

// CallEvery invokes registered callbacks at a fixed interval from an outer
// polling loop. A newly added callback runs on the next RunOnce.
type CallEvery struct {
	mu           sync.Mutex
	entries      map[EveryHandle]*everyEntry
	next         EveryHandle
	timeProvider TimeProvider
}

// NewCallEvery creates an empty periodic handler. A nil provider selects
// the package default.
func NewCallEvery(tp TimeProvider) *CallEvery {
	return &CallEvery{
		entries:      make(map[EveryHandle]*everyEntry),
		timeProvider: getTimeProvider(tp),
	}
}

// Add registers callback to run every interval.
func (c *CallEvery) Add(callback func(), interval time.Duration) EveryHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	c.entries[c.next] = &everyEntry{callback: callback, interval: interval}
	return c.next
}

// Change sets a new interval for h.
func (c *CallEvery) Change(h EveryHandle, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[h]; ok {
		e.interval = interval
	}
}

// Reset restarts the interval of h from now.
func (c *CallEvery) Reset(h EveryHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[h]; ok {
		e.lastRun = c.timeProvider.Now()
		e.primed = true
	}
}

// Remove unregisters h.
func (c *CallEvery) Remove(h EveryHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, h)
}

// RunOnce invokes every callback whose interval has elapsed and returns how
// many ran.
func (c *CallEvery) RunOnce() int {
	c.mu.Lock()
	now := c.timeProvider.Now()
	var due []func()
	for _, e := range c.entries {
		if e.primed && now.Sub(e.lastRun) < e.interval {
			continue
		}
		e.lastRun = now
		e.primed = true
		due = append(due, e.callback)
	}
	c.mu.Unlock()

	for _, cb := range due {
		if cb != nil {
			cb()
		}
	}
	return len(due)
}

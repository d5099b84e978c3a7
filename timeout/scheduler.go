package timeout

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handle identifies a scheduled timeout. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

// slot is one entry of the scheduler arena.
type slot struct {
	deadline   time.Time
	duration   time.Duration
	callback   func()
	generation uint32
	active     bool
	order      uint64
}

// Scheduler runs callbacks once their deadline has passed.
// It is safe for concurrent use; callbacks run without any scheduler lock held.
type Scheduler struct {
	mu           sync.Mutex
	slots        []slot
	free         []uint32
	active       int
	order        uint64
	timeProvider TimeProvider
}

// NewScheduler creates an empty scheduler. A nil provider selects the
// package default.
func NewScheduler(tp TimeProvider) *Scheduler {
	return &Scheduler{
		timeProvider: getTimeProvider(tp),
	}
}

// SetTimeProvider replaces the time source. Existing deadlines are kept.
func (s *Scheduler) SetTimeProvider(tp TimeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeProvider = getTimeProvider(tp)
}

// Now returns the current time of the scheduler's clock.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	tp := s.timeProvider
	s.mu.Unlock()
	return tp.Now()
}

// Add schedules callback to run once duration has elapsed.
func (s *Scheduler) Add(callback func(), duration time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{generation: 1})
		index = uint32(len(s.slots) - 1)
	}

	s.order++
	sl := &s.slots[index]
	sl.deadline = s.timeProvider.Now().Add(duration)
	sl.duration = duration
	sl.callback = callback
	sl.active = true
	sl.order = s.order
	s.active++

	return Handle{index: index, generation: sl.generation}
}

// Refresh recomputes the deadline of h from its original duration and the
// current time. Stale handles are ignored.
func (s *Scheduler) Refresh(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.lookup(h)
	if sl == nil {
		return
	}
	sl.deadline = s.timeProvider.Now().Add(sl.duration)
}

// Remove cancels h without running it. Stale handles are ignored.
func (s *Scheduler) Remove(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sl := s.lookup(h); sl != nil {
		s.release(h.index)
	}
}

// Pending reports whether h is still scheduled.
func (s *Scheduler) Pending(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(h) != nil
}

// Len returns the number of scheduled entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// RunOnce fires every entry whose deadline has passed and returns how many
// fired. Due entries are all removed before the first callback is invoked.
func (s *Scheduler) RunOnce() int {
	type due struct {
		deadline time.Time
		order    uint64
		callback func()
	}

	s.mu.Lock()
	now := s.timeProvider.Now()
	var fired []due
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.active || sl.deadline.After(now) {
			continue
		}
		fired = append(fired, due{deadline: sl.deadline, order: sl.order, callback: sl.callback})
		s.release(uint32(i))
	}
	s.mu.Unlock()

	if len(fired) == 0 {
		return 0
	}

	sort.Slice(fired, func(i, j int) bool {
		if fired[i].deadline.Equal(fired[j].deadline) {
			return fired[i].order < fired[j].order
		}
		return fired[i].deadline.Before(fired[j].deadline)
	})

	logrus.WithFields(logrus.Fields{
		"function": "RunOnce",
		"fired":    len(fired),
	}).Debug("Timeouts expired")

	for _, d := range fired {
		if d.callback != nil {
			d.callback()
		}
	}
	return len(fired)
}

// lookup returns the live slot for h, or nil. Requires s.mu.
func (s *Scheduler) lookup(h Handle) *slot {
	if h.generation == 0 || int(h.index) >= len(s.slots) {
		return nil
	}
	sl := &s.slots[h.index]
	if !sl.active || sl.generation != h.generation {
		return nil
	}
	return sl
}

// release frees a slot and bumps its generation so outstanding handles go stale.
// Requires s.mu.
func (s *Scheduler) release(index uint32) {
	sl := &s.slots[index]
	sl.active = false
	sl.callback = nil
	sl.generation++
	if sl.generation == 0 {
		sl.generation = 1
	}
	s.active--
	s.free = append(s.free, index)
}

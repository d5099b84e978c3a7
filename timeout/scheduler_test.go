package timeout

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() (*Scheduler, *clock.Mock) {
	mock := clock.NewMock()
	return NewScheduler(mock), mock
}

func TestSchedulerFiresExactlyAtDeadline(t *testing.T) {
	sched, mock := newTestScheduler()

	calls := 0
	sched.Add(func() { calls++ }, 500*time.Millisecond)

	mock.Add(499 * time.Millisecond)
	assert.Equal(t, 0, sched.RunOnce())
	assert.Equal(t, 0, calls, "must not fire before the duration elapsed")

	mock.Add(1 * time.Millisecond)
	assert.Equal(t, 1, sched.RunOnce())
	assert.Equal(t, 1, calls)

	mock.Add(10 * time.Second)
	sched.RunOnce()
	assert.Equal(t, 1, calls, "must fire exactly once")
	assert.Equal(t, 0, sched.Len())
}

func TestSchedulerRefreshExtendsDeadline(t *testing.T) {
	sched, mock := newTestScheduler()

	calls := 0
	h := sched.Add(func() { calls++ }, time.Second)

	mock.Add(800 * time.Millisecond)
	sched.Refresh(h)

	mock.Add(800 * time.Millisecond)
	sched.RunOnce()
	assert.Equal(t, 0, calls, "refresh should push the deadline out")

	mock.Add(200 * time.Millisecond)
	sched.RunOnce()
	assert.Equal(t, 1, calls)

	mock.Add(5 * time.Second)
	sched.RunOnce()
	assert.Equal(t, 1, calls, "refresh must not create a second firing")
}

func TestSchedulerRemove(t *testing.T) {
	sched, mock := newTestScheduler()

	fired := false
	h := sched.Add(func() { fired = true }, time.Second)
	require.True(t, sched.Pending(h))

	sched.Remove(h)
	assert.False(t, sched.Pending(h))

	mock.Add(2 * time.Second)
	sched.RunOnce()
	assert.False(t, fired)
}

func TestSchedulerStaleHandleIsNoop(t *testing.T) {
	sched, mock := newTestScheduler()

	first := 0
	h1 := sched.Add(func() { first++ }, time.Second)
	mock.Add(time.Second)
	sched.RunOnce()
	require.Equal(t, 1, first)

	// The freed slot is reused by the next entry.
	second := 0
	h2 := sched.Add(func() { second++ }, time.Second)
	assert.Equal(t, h1.index, h2.index)
	assert.NotEqual(t, h1.generation, h2.generation)

	// Operations on the fired handle must not touch the new entry.
	sched.Remove(h1)
	sched.Refresh(h1)
	assert.True(t, sched.Pending(h2))

	mock.Add(time.Second)
	sched.RunOnce()
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestSchedulerZeroHandle(t *testing.T) {
	sched, _ := newTestScheduler()
	var h Handle
	assert.True(t, h.IsZero())
	sched.Remove(h)
	sched.Refresh(h)
	assert.False(t, sched.Pending(h))
}

func TestSchedulerCallbacksRunInDeadlineOrder(t *testing.T) {
	sched, mock := newTestScheduler()

	var order []string
	sched.Add(func() { order = append(order, "c") }, 300*time.Millisecond)
	sched.Add(func() { order = append(order, "a") }, 100*time.Millisecond)
	sched.Add(func() { order = append(order, "b") }, 200*time.Millisecond)

	mock.Add(time.Second)
	assert.Equal(t, 3, sched.RunOnce())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSchedulerCallbackMayMutateScheduler(t *testing.T) {
	sched, mock := newTestScheduler()

	var other Handle
	otherFired := false
	rescheduled := 0

	var self func()
	self = func() {
		rescheduled++
		sched.Remove(other)
		if rescheduled < 3 {
			sched.Add(self, time.Second)
		}
	}

	sched.Add(self, time.Second)
	other = sched.Add(func() { otherFired = true }, 2*time.Second)

	for i := 0; i < 5; i++ {
		mock.Add(time.Second)
		sched.RunOnce()
	}

	assert.Equal(t, 3, rescheduled)
	assert.False(t, otherFired, "entry removed from inside a callback must not fire")
	assert.Equal(t, 0, sched.Len())
}

func TestSchedulerDueEntriesRemovedBeforeCallbacks(t *testing.T) {
	sched, mock := newTestScheduler()

	var h2 Handle
	secondFired := 0
	sched.Add(func() {
		// h2 is already due and removed; refreshing it must be a no-op.
		sched.Refresh(h2)
	}, 100*time.Millisecond)
	h2 = sched.Add(func() { secondFired++ }, 200*time.Millisecond)

	mock.Add(time.Second)
	sched.RunOnce()
	mock.Add(time.Second)
	sched.RunOnce()
	assert.Equal(t, 1, secondFired)
}

package timeout

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
)

func TestCallEveryRunsImmediatelyThenPeriodically(t *testing.T) {
	mock := clock.NewMock()
	every := NewCallEvery(mock)

	calls := 0
	every.Add(func() { calls++ }, time.Second)

	every.RunOnce()
	assert.Equal(t, 1, calls, "new callback runs on the first poll")

	mock.Add(500 * time.Millisecond)
	every.RunOnce()
	assert.Equal(t, 1, calls)

	mock.Add(500 * time.Millisecond)
	every.RunOnce()
	assert.Equal(t, 2, calls)

	// Several elapsed intervals still yield one call per poll.
	mock.Add(5 * time.Second)
	every.RunOnce()
	assert.Equal(t, 3, calls)
}

func TestCallEveryChangeResetRemove(t *testing.T) {
	mock := clock.NewMock()
	every := NewCallEvery(mock)

	calls := 0
	h := every.Add(func() { calls++ }, time.Second)
	every.RunOnce()

	every.Change(h, 3*time.Second)
	mock.Add(2 * time.Second)
	every.RunOnce()
	assert.Equal(t, 1, calls)

	every.Reset(h)
	mock.Add(2 * time.Second)
	every.RunOnce()
	assert.Equal(t, 1, calls, "reset should restart the interval")

	mock.Add(time.Second)
	every.RunOnce()
	assert.Equal(t, 2, calls)

	every.Remove(h)
	mock.Add(time.Hour)
	assert.Equal(t, 0, every.RunOnce())
	assert.Equal(t, 2, calls)
}

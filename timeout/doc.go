// Package timeout provides the cooperative timing primitives every retry
// mechanism in groundlink is built on.
//
// A Scheduler holds pending (deadline, callback) entries. It never blocks and
// never spawns goroutines: an outer loop calls RunOnce periodically, and every
// entry whose deadline has passed is removed and then invoked, in deadline
// order. Because entries are removed before any callback runs, a callback may
// freely add, refresh or remove other entries (or re-add itself).
//
// Entries are identified by a Handle, a generation-checked index into the
// scheduler's slot arena. A handle that has fired or been removed is stale:
// Refresh and Remove on a stale handle are no-ops, even after its slot has
// been reused by a newer entry.
//
// Example:
//
//	sched := timeout.NewScheduler(nil)
//	h := sched.Add(func() { fmt.Println("no reply") }, 500*time.Millisecond)
//
//	// on every reply that proves the peer is alive:
//	sched.Refresh(h)
//
//	// in the main loop:
//	for running {
//	    sched.RunOnce()
//	    time.Sleep(10 * time.Millisecond)
//	}
//
// CallEvery is the periodic counterpart used for heartbeats and polling.
//
// Both types read time through a TimeProvider so that tests can substitute
// a mock clock (clock.NewMock from github.com/andres-erbsen/clock satisfies
// the interface).
package timeout

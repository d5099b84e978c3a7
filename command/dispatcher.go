package command

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/opd-ai/groundlink/timeout"
	"github.com/opd-ai/groundlink/transport"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

const (
	// DefaultTimeout is the per-attempt wait for an acknowledgment.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultRetries is the number of retransmissions after the first send.
	DefaultRetries = 3

	// progressUnknown is the COMMAND_ACK progress value meaning "not reported".
	progressUnknown = 255
)

var (
	// ErrInvalidTimeout is returned when setting a non-positive timeout.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidRetries is returned when setting a negative retry count.
	ErrInvalidRetries = errors.New("retries must not be negative")
)

// Callback receives InProgress updates followed by exactly one terminal
// result. progress is in [0,1] for InProgress and Success and NaN otherwise.
type Callback func(result Result, progress float32)

type pendingCommand struct {
	id               uint64
	command          Command
	ident            Identification
	callback         Callback
	retriesRemaining int
	alreadySent      bool
	timeout          time.Duration
	timeoutHandle    timeout.Handle
	started          time.Time
}

type callbackCall struct {
	callback Callback
	result   Result
	progress float32
}

// Dispatcher sends commands and tracks their acknowledgments.
type Dispatcher struct {
	mu        sync.Mutex
	transport transport.Transport
	scheduler *timeout.Scheduler
	queue     []*pendingCommand
	nextID    uint64
	timeout   time.Duration
	retries   int
	autopilot Autopilot

	sentCounter      tally.Counter
	retryCounter     tally.Counter
	timeoutCounter   tally.Counter
	duplicateCounter tally.Counter
	roundTrip        tally.Timer
}

// NewDispatcher creates a dispatcher and registers its COMMAND_ACK handler.
// A nil scope disables metrics.
func NewDispatcher(tr transport.Transport, scheduler *timeout.Scheduler, scope tally.Scope) *Dispatcher {
	if scope == nil {
		scope = tally.NoopScope
	}
	scope = scope.SubScope("command")

	d := &Dispatcher{
		transport:        tr,
		scheduler:        scheduler,
		timeout:          DefaultTimeout,
		retries:          DefaultRetries,
		sentCounter:      scope.Counter("sent"),
		retryCounter:     scope.Counter("retries"),
		timeoutCounter:   scope.Counter("timeouts"),
		duplicateCounter: scope.Counter("dropped_duplicates"),
		roundTrip:        scope.Timer("round_trip"),
	}

	tr.RegisterHandler(transport.MessageID(&common.MessageCommandAck{}), d.handleAck)

	logrus.WithFields(logrus.Fields{
		"function": "NewDispatcher",
		"local":    tr.LocalAddr().String(),
		"timeout":  d.timeout,
		"retries":  d.retries,
	}).Info("Command dispatcher created")

	return d
}

// SetTimeout changes the per-attempt timeout of commands queued afterwards.
func (d *Dispatcher) SetTimeout(t time.Duration) error {
	if t <= 0 {
		return ErrInvalidTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
	return nil
}

// SetRetries changes the default retransmission count.
func (d *Dispatcher) SetRetries(n int) error {
	if n < 0 {
		return ErrInvalidRetries
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retries = n
	return nil
}

// SetAutopilot selects how unset parameters are encoded.
func (d *Dispatcher) SetAutopilot(a Autopilot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autopilot = a
}

// SendAsync queues cmd with the default retry count. If cb is nil and an
// identical command is already queued, the new command is dropped.
func (d *Dispatcher) SendAsync(cmd Command, cb Callback) {
	d.mu.Lock()
	retries := d.retries
	d.mu.Unlock()
	d.enqueue(cmd, cb, retries)
}

// SendAsyncRetries is SendAsync with an explicit retransmission count.
func (d *Dispatcher) SendAsyncRetries(cmd Command, cb Callback, retries int) {
	if retries < 0 {
		retries = 0
	}
	d.enqueue(cmd, cb, retries)
}

// Send queues cmd and waits for its terminal result. InProgress updates are
// skipped. If ctx ends first the command is withdrawn and Cancelled returned.
func (d *Dispatcher) Send(ctx context.Context, cmd Command) Result {
	done := make(chan Result, 1)
	d.mu.Lock()
	retries := d.retries
	d.mu.Unlock()

	id, queued := d.enqueue(cmd, func(result Result, _ float32) {
		if result.Terminal() {
			done <- result
		}
	}, retries)
	if !queued {
		return UnknownError
	}

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		if d.withdraw(id) {
			return Cancelled
		}
		// The terminal result raced the cancellation.
		return <-done
	}
}

// Cancel withdraws every queued command with the given identification.
// Their callbacks receive Cancelled.
func (d *Dispatcher) Cancel(ident Identification) int {
	var calls []callbackCall

	d.mu.Lock()
	kept := d.queue[:0]
	for _, item := range d.queue {
		if item.ident != ident {
			kept = append(kept, item)
			continue
		}
		d.scheduler.Remove(item.timeoutHandle)
		if item.callback != nil {
			calls = append(calls, callbackCall{item.callback, Cancelled, float32(math.NaN())})
		}
	}
	removed := len(d.queue) - len(kept)
	clearTail(d.queue, len(kept))
	d.queue = kept
	d.mu.Unlock()

	runCallbacks(calls)
	return removed
}

// Pending returns the number of queued commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// DoWork transmits queued commands whose command id has nothing in flight.
func (d *Dispatcher) DoWork() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, item := range d.queue {
		if item.alreadySent || d.kindInFlight(item) {
			continue
		}

		item.started = d.scheduler.Now()
		if err := d.transport.Send(item.command.encode(d.autopilot)); err != nil {
			// The timeout path retransmits.
			logrus.WithFields(logrus.Fields{
				"function": "DoWork",
				"command":  uint32(item.ident.Command),
				"error":    err.Error(),
			}).Error("Failed to send command")
		} else {
			d.sentCounter.Inc(1)
			logrus.WithFields(logrus.Fields{
				"function": "DoWork",
				"command":  uint32(item.ident.Command),
				"target":   transport.Address{SystemID: item.ident.TargetSystem, ComponentID: item.ident.TargetComponent}.String(),
			}).Debug("Sent command")
		}

		item.alreadySent = true
		item.timeoutHandle = d.armTimeout(item.id, item.timeout)
	}
}

func (d *Dispatcher) enqueue(cmd Command, cb Callback, retries int) (uint64, bool) {
	ident := cmd.Identify()

	d.mu.Lock()
	defer d.mu.Unlock()

	if cb == nil {
		for _, item := range d.queue {
			if item.ident == ident {
				d.duplicateCounter.Inc(1)
				logrus.WithFields(logrus.Fields{
					"function": "enqueue",
					"command":  uint32(ident.Command),
				}).Debug("Dropping command that is already being sent")
				return 0, false
			}
		}
	}

	d.nextID++
	d.queue = append(d.queue, &pendingCommand{
		id:               d.nextID,
		command:          cmd,
		ident:            ident,
		callback:         cb,
		retriesRemaining: retries,
		timeout:          d.timeout,
	})
	return d.nextID, true
}

// kindInFlight reports whether another queued command with the same command
// id is waiting for its acknowledgment. Caller holds d.mu.
func (d *Dispatcher) kindInFlight(item *pendingCommand) bool {
	for _, other := range d.queue {
		if other != item && other.alreadySent && other.ident.Command == item.ident.Command {
			return true
		}
	}
	return false
}

func (d *Dispatcher) armTimeout(id uint64, after time.Duration) timeout.Handle {
	return d.scheduler.Add(func() { d.handleTimeout(id) }, after)
}

func (d *Dispatcher) handleAck(env *transport.Envelope) error {
	ack, ok := env.Message.(*common.MessageCommandAck)
	if !ok {
		return nil
	}

	local := d.transport.LocalAddr()
	if (ack.TargetSystem != 0 && ack.TargetSystem != local.SystemID) ||
		(ack.TargetComponent != 0 && ack.TargetComponent != local.ComponentID) {
		logrus.WithFields(logrus.Fields{
			"function": "handleAck",
			"command":  uint32(ack.Command),
			"from":     env.Sender().String(),
			"to":       transport.Address{SystemID: ack.TargetSystem, ComponentID: ack.TargetComponent}.String(),
		}).Debug("Ignoring command ack addressed elsewhere")
		return nil
	}

	var call *callbackCall

	d.mu.Lock()
	idx := d.matchAck(ack.Command, env.Sender())
	if idx < 0 {
		d.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleAck",
			"command":  uint32(ack.Command),
			"from":     env.Sender().String(),
		}).Warn("Received ack for command that is not pending")
		return nil
	}

	item := d.queue[idx]
	result, known := resultFromAck(ack.Result)
	switch {
	case !known:
		logrus.WithFields(logrus.Fields{
			"function": "handleAck",
			"command":  uint32(ack.Command),
			"result":   uint32(ack.Result),
		}).Warn("Received unknown ack result")

	case result == InProgress:
		// The command arrived, allow a slow operation to finish.
		d.scheduler.Remove(item.timeoutHandle)
		wait := item.timeout * time.Duration(max(item.retriesRemaining, 1))
		item.timeoutHandle = d.armTimeout(item.id, wait)

		progress := float32(math.NaN())
		if ack.Progress != progressUnknown {
			progress = float32(ack.Progress) / 100
		}
		if item.callback != nil {
			call = &callbackCall{item.callback, InProgress, progress}
		}

	default:
		d.scheduler.Remove(item.timeoutHandle)
		d.removeAt(idx)
		d.roundTrip.Record(d.scheduler.Now().Sub(item.started))

		progress := float32(math.NaN())
		if result == Success {
			progress = 1
		}
		if item.callback != nil {
			call = &callbackCall{item.callback, result, progress}
		}
		logrus.WithFields(logrus.Fields{
			"function": "handleAck",
			"command":  uint32(ack.Command),
			"result":   result.String(),
		}).Debug("Command completed")
	}
	d.mu.Unlock()

	if call != nil {
		call.callback(call.result, call.progress)
	}
	return nil
}

// matchAck finds the in-flight command an ack from sender belongs to. A
// zero target id on the command matches any sender. Caller holds d.mu.
func (d *Dispatcher) matchAck(cmd common.MAV_CMD, sender transport.Address) int {
	for i, item := range d.queue {
		if !item.alreadySent || item.ident.Command != cmd {
			continue
		}
		if item.ident.TargetSystem != 0 && item.ident.TargetSystem != sender.SystemID {
			continue
		}
		if item.ident.TargetComponent != 0 && item.ident.TargetComponent != sender.ComponentID {
			continue
		}
		return i
	}
	return -1
}

func (d *Dispatcher) handleTimeout(id uint64) {
	var call *callbackCall

	d.mu.Lock()
	idx := d.indexOf(id)
	if idx < 0 {
		d.mu.Unlock()
		return
	}
	item := d.queue[idx]

	if item.retriesRemaining > 0 {
		if err := d.transport.Send(item.command.encode(d.autopilot)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleTimeout",
				"command":  uint32(item.ident.Command),
				"error":    err.Error(),
			}).Error("Connection send error in retransmit")
			d.removeAt(idx)
			if item.callback != nil {
				call = &callbackCall{item.callback, ConnectionError, float32(math.NaN())}
			}
		} else {
			item.retriesRemaining--
			item.timeoutHandle = d.armTimeout(item.id, item.timeout)
			d.retryCounter.Inc(1)
			logrus.WithFields(logrus.Fields{
				"function":          "handleTimeout",
				"command":           uint32(item.ident.Command),
				"retries_remaining": item.retriesRemaining,
				"elapsed":           d.scheduler.Now().Sub(item.started),
			}).Warn("Command not acknowledged, sending again")
		}
	} else {
		d.removeAt(idx)
		d.timeoutCounter.Inc(1)
		logrus.WithFields(logrus.Fields{
			"function":       "handleTimeout",
			"command":        uint32(item.ident.Command),
			"disambiguator1": item.ident.Disambiguator1,
		}).Warn("Retrying failed for command")
		if item.callback != nil {
			call = &callbackCall{item.callback, Timeout, float32(math.NaN())}
		}
	}
	d.mu.Unlock()

	if call != nil {
		call.callback(call.result, call.progress)
	}
}

// withdraw removes a queued command without invoking its callback.
func (d *Dispatcher) withdraw(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.indexOf(id)
	if idx < 0 {
		return false
	}
	d.scheduler.Remove(d.queue[idx].timeoutHandle)
	d.removeAt(idx)
	return true
}

func (d *Dispatcher) indexOf(id uint64) int {
	for i, item := range d.queue {
		if item.id == id {
			return i
		}
	}
	return -1
}

func (d *Dispatcher) removeAt(idx int) {
	copy(d.queue[idx:], d.queue[idx+1:])
	d.queue[len(d.queue)-1] = nil
	d.queue = d.queue[:len(d.queue)-1]
}

func clearTail(items []*pendingCommand, from int) {
	for i := from; i < len(items); i++ {
		items[i] = nil
	}
}

func runCallbacks(calls []callbackCall) {
	for _, c := range calls {
		c.callback(c.result, c.progress)
	}
}

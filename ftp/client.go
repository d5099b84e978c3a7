package ftp

import (
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/google/uuid"
	"github.com/opd-ai/groundlink/timeout"
	"github.com/opd-ai/groundlink/transport"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

const (
	// DefaultTimeout is the wait for one request/response round trip.
	DefaultTimeout = 200 * time.Millisecond

	// DefaultRetries is the number of attempts per request, the first
	// transmission included.
	DefaultRetries = 10

	// noSessionsBackoff is the pause after a server reports that all its
	// sessions are in use.
	noSessionsBackoff = 3 * time.Second

	// clientSession is the session id the client puts in every request.
	clientSession = 0
)

var (
	// ErrInvalidTimeout is returned when setting a non-positive timeout.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidRetries is returned when setting fewer than one attempt.
	ErrInvalidRetries = errors.New("retries must be at least 1")
)

// Option adjusts a single queued operation.
type Option func(*work)

// WithTargetComponent addresses one operation to a component other than the
// client's default target.
func WithTargetComponent(id uint8) Option {
	return func(w *work) {
		w.targetComponent = id
	}
}

// work is one queued operation plus its request/response bookkeeping.
type work struct {
	id              OperationID
	op              operation
	targetComponent uint8
	started         bool
	retries         int
	lastOpcode      Opcode
	lastReceivedSeq uint16
	received        bool
	request         Packet
}

// Client drives file transfer operations against a remote FTP server.
//
// Operations are queued and run one at a time, front of queue first. The
// client is cooperative: DoWork starts the next operation and the shared
// timeout.Scheduler drives retransmissions.
type Client struct {
	mu        sync.Mutex
	transport transport.Transport
	scheduler *timeout.Scheduler
	target    transport.Address
	timeout   time.Duration
	retries   int
	queue     []*work
	nextSeq   uint16
	timer     timeout.Handle
	timerGen  uint64
	notices   []func()

	sentCounter      tally.Counter
	retryCounter     tally.Counter
	timeoutCounter   tally.Counter
	duplicateCounter tally.Counter
	gapCounter       tally.Counter
}

// NewClient creates a client talking to target and registers its
// FILE_TRANSFER_PROTOCOL handler. A nil scope disables metrics.
func NewClient(tr transport.Transport, scheduler *timeout.Scheduler, scope tally.Scope, target transport.Address) *Client {
	if scope == nil {
		scope = tally.NoopScope
	}
	scope = scope.SubScope("ftp_client")

	c := &Client{
		transport:        tr,
		scheduler:        scheduler,
		target:           target,
		timeout:          DefaultTimeout,
		retries:          DefaultRetries,
		sentCounter:      scope.Counter("sent"),
		retryCounter:     scope.Counter("retries"),
		timeoutCounter:   scope.Counter("timeouts"),
		duplicateCounter: scope.Counter("dropped_duplicates"),
		gapCounter:       scope.Counter("gaps"),
	}

	tr.RegisterHandler(transport.MessageID(&common.MessageFileTransferProtocol{}), c.handleMessage)

	logrus.WithFields(logrus.Fields{
		"function": "NewClient",
		"local":    tr.LocalAddr().String(),
		"target":   target.String(),
	}).Info("FTP client created")

	return c
}

// SetTimeout changes the round trip timeout.
func (c *Client) SetTimeout(t time.Duration) error {
	if t <= 0 {
		return ErrInvalidTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = t
	return nil
}

// SetRetries changes the number of attempts per request.
func (c *Client) SetRetries(n int) error {
	if n < 1 {
		return ErrInvalidRetries
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries = n
	return nil
}

// SetTargetComponent changes the component id operations queued afterwards
// are addressed to.
func (c *Client) SetTargetComponent(id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target.ComponentID = id
}

// Pending returns the number of queued operations, the active one included.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Cancel withdraws the operation with the given id. Its callback receives
// Cancelled. It reports false if the operation already finished.
func (c *Client) Cancel(id OperationID) bool {
	c.mu.Lock()
	defer c.unlock()

	for i, w := range c.queue {
		if w.id != id {
			continue
		}
		if i == 0 && w.started {
			c.finish(w, Cancelled, holdsSession(w.op))
		} else {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			w.op.release()
			c.notify(w.op.fail(Cancelled))
		}
		logrus.WithFields(logrus.Fields{
			"function":  "Cancel",
			"operation": id.String(),
			"kind":      w.op.kind(),
		}).Info("FTP operation cancelled")
		return true
	}
	return false
}

// DoWork starts the operation at the front of the queue if it has not been
// started yet. Operations that fail before sending anything are reported
// and the next one is started.
func (c *Client) DoWork() {
	c.mu.Lock()
	defer c.unlock()

	for len(c.queue) > 0 {
		w := c.queue[0]
		if w.started {
			return
		}
		w.started = true
		w.retries = c.retries

		logrus.WithFields(logrus.Fields{
			"function":  "DoWork",
			"operation": w.id.String(),
			"kind":      w.op.kind(),
		}).Debug("Starting FTP operation")

		if c.start(w) {
			return
		}
	}
}

func (c *Client) enqueue(op operation, opts []Option) OperationID {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &work{
		id:              uuid.New(),
		op:              op,
		targetComponent: c.target.ComponentID,
	}
	for _, opt := range opts {
		opt(w)
	}
	c.queue = append(c.queue, w)

	logrus.WithFields(logrus.Fields{
		"function":  "enqueue",
		"operation": w.id.String(),
		"kind":      op.kind(),
		"queued":    len(c.queue),
	}).Debug("FTP operation queued")
	return w.id
}

// start sends the first request of w. On false the operation has already
// been reported and removed. Caller holds c.mu.
func (c *Client) start(w *work) bool {
	switch op := w.op.(type) {
	case *downloadOp:
		return c.downloadStart(w, op)
	case *burstDownloadOp:
		return c.burstStart(w, op)
	case *uploadOp:
		return c.uploadStart(w, op)
	case *removeFileOp:
		return c.pathStart(w, OpRemoveFile, op.path)
	case *createDirOp:
		return c.pathStart(w, OpCreateDirectory, op.path)
	case *removeDirOp:
		return c.pathStart(w, OpRemoveDirectory, op.path)
	case *renameOp:
		return c.renameStart(w, op)
	case *compareOp:
		return c.compareStart(w, op)
	case *listDirOp:
		return c.listStart(w, op)
	case *resetOp:
		c.send(w, &Packet{Opcode: OpResetSessions})
		return true
	default:
		c.finish(w, ProtocolError, false)
		return false
	}
}

func (c *Client) handleMessage(env *transport.Envelope) error {
	msg, ok := env.Message.(*common.MessageFileTransferProtocol)
	if !ok {
		return nil
	}

	p, err := DecodePacket(msg.Payload[:])
	if err != nil || !p.Opcode.IsResponse() {
		// Requests belong to a server sharing the transport.
		return nil
	}

	local := c.transport.LocalAddr()
	if (msg.TargetSystem != 0 && msg.TargetSystem != local.SystemID) ||
		(msg.TargetComponent != 0 && msg.TargetComponent != local.ComponentID) {
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"from":     env.Sender().String(),
			"to":       transport.Address{SystemID: msg.TargetSystem, ComponentID: msg.TargetComponent}.String(),
		}).Debug("Ignoring FTP response addressed elsewhere")
		return nil
	}

	if err := p.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"from":     env.Sender().String(),
			"error":    err.Error(),
		}).Warn("Dropping FTP response with invalid size")
		return nil
	}

	c.mu.Lock()
	defer c.unlock()

	if len(c.queue) == 0 || !c.queue[0].started {
		return nil
	}
	w := c.queue[0]

	if p.ReqOpcode != w.lastOpcode {
		logrus.WithFields(logrus.Fields{
			"function":   "handleMessage",
			"last":       w.lastOpcode.String(),
			"req_opcode": p.ReqOpcode.String(),
		}).Debug("Ignoring FTP response to another request")
		return nil
	}
	if w.received && w.lastReceivedSeq == p.Seq {
		c.duplicateCounter.Inc(1)
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"seq":      p.Seq,
		}).Debug("Ignoring FTP response already seen")
		return nil
	}
	c.observeSeq(p.Seq)

	logrus.WithFields(logrus.Fields{
		"function":   "handleMessage",
		"opcode":     p.Opcode.String(),
		"req_opcode": p.ReqOpcode.String(),
		"size":       p.Size,
		"offset":     p.Offset,
		"seq":        p.Seq,
	}).Debug("FTP response")

	record := true
	switch op := w.op.(type) {
	case *downloadOp:
		c.onDownload(w, op, p)
	case *burstDownloadOp:
		record = c.onBurstDownload(w, op, p)
	case *uploadOp:
		c.onUpload(w, op, p)
	case *compareOp:
		c.onCompare(w, op, p)
	case *listDirOp:
		c.onList(w, op, p)
	case *removeFileOp, *createDirOp, *removeDirOp, *renameOp, *resetOp:
		c.onSimple(w, p)
	}

	if record {
		w.lastReceivedSeq = p.Seq
		w.received = true
	}
	return nil
}

// onSimple handles the single request operations.
func (c *Client) onSimple(w *work, p *Packet) {
	if p.Opcode == OpAck {
		c.finish(w, Success, false)
		return
	}
	c.finish(w, resultFromNak(p), false)
}

func (c *Client) handleTimeout(gen uint64) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.timerGen || len(c.queue) == 0 || !c.queue[0].started {
		return
	}
	w := c.queue[0]
	c.timeoutCounter.Inc(1)

	w.retries--
	if w.retries <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "handleTimeout",
			"operation": w.id.String(),
			"kind":      w.op.kind(),
			"last":      w.lastOpcode.String(),
		}).Warn("FTP operation timed out")
		c.finish(w, Timeout, holdsSession(w.op))
		return
	}

	if op, ok := w.op.(*burstDownloadOp); ok {
		c.burstTimeout(w, op)
		return
	}
	c.retransmit(w)
}

// send stamps p with the next sequence number, remembers it for
// retransmission and arms the round trip timer. Caller holds c.mu.
func (c *Client) send(w *work, p *Packet) {
	p.Seq = c.nextSeq
	c.nextSeq++
	p.Session = clientSession
	w.request = *p
	w.lastOpcode = p.Opcode

	c.startTimer(c.timeout)
	c.transmit(w)
}

// retransmit sends the last request of w again, unchanged. Caller holds c.mu.
func (c *Client) retransmit(w *work) {
	c.retryCounter.Inc(1)
	logrus.WithFields(logrus.Fields{
		"function":     "retransmit",
		"operation":    w.id.String(),
		"opcode":       w.request.Opcode.String(),
		"seq":          w.request.Seq,
		"retries_left": w.retries,
	}).Debug("Sending FTP request again")

	c.startTimer(c.timeout)
	c.transmit(w)
}

func (c *Client) transmit(w *work) {
	msg := &common.MessageFileTransferProtocol{
		TargetSystem:    c.target.SystemID,
		TargetComponent: w.targetComponent,
		Payload:         w.request.Encode(),
	}
	if err := c.transport.Send(msg); err != nil {
		// The timer retransmits.
		logrus.WithFields(logrus.Fields{
			"function": "transmit",
			"opcode":   w.request.Opcode.String(),
			"error":    err.Error(),
		}).Error("Failed to send FTP request")
		return
	}
	c.sentCounter.Inc(1)
}

// terminate sends TerminateSession once, without a timer. Caller holds c.mu.
func (c *Client) terminate(w *work) {
	p := &Packet{Opcode: OpTerminateSession, Seq: c.nextSeq, Session: clientSession}
	c.nextSeq++
	w.request = *p
	w.lastOpcode = p.Opcode
	c.transmit(w)
}

// endSession sends TerminateSession and waits for its ack, which completes
// the transfer. Caller holds c.mu.
func (c *Client) endSession(w *work) {
	c.send(w, &Packet{Opcode: OpTerminateSession})
}

func (c *Client) startTimer(d time.Duration) {
	c.scheduler.Remove(c.timer)
	c.timerGen++
	gen := c.timerGen
	c.timer = c.scheduler.Add(func() { c.handleTimeout(gen) }, d)
}

func (c *Client) stopTimer() {
	c.scheduler.Remove(c.timer)
	c.timer = timeout.Handle{}
	c.timerGen++
}

// finish removes w from the front of the queue and reports result. With
// terminate set a best-effort TerminateSession goes out first. Caller
// holds c.mu.
func (c *Client) finish(w *work, result ClientResult, terminate bool) {
	if len(c.queue) == 0 || c.queue[0] != w {
		return
	}
	c.stopTimer()
	if terminate {
		c.terminate(w)
	}
	w.op.release()
	c.queue[0] = nil
	c.queue = c.queue[1:]

	logrus.WithFields(logrus.Fields{
		"function":  "finish",
		"operation": w.id.String(),
		"kind":      w.op.kind(),
		"result":    result.String(),
	}).Info("FTP operation finished")

	c.notify(w.op.fail(result))
}

// observeSeq keeps outgoing sequence numbers ahead of everything the server
// has sent, so a reply to a later request never repeats a burst sequence
// number. Caller holds c.mu.
func (c *Client) observeSeq(seq uint16) {
	if int16(seq-c.nextSeq) > 0 {
		c.nextSeq = seq
	}
}

func (c *Client) notify(fn func()) {
	if fn != nil {
		c.notices = append(c.notices, fn)
	}
}

// unlock releases c.mu and then runs the notifications collected under it.
func (c *Client) unlock() {
	notices := c.notices
	c.notices = nil
	c.mu.Unlock()
	for _, fn := range notices {
		fn()
	}
}

func holdsSession(op operation) bool {
	switch op.(type) {
	case *downloadOp, *burstDownloadOp, *uploadOp:
		return true
	default:
		return false
	}
}

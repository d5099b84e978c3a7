package transport

import (
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/sirupsen/logrus"
)

// DropFunc decides whether an outgoing message is lost in transit.
type DropFunc func(msg message.Message) bool

// PipeEnd is one side of an in-memory link created by NewPipe.
//
// Messages sent on one end are queued at the other and delivered to its
// handlers when that end's Pump is called. Nothing is delivered
// synchronously from Send, so engines may send while holding their locks.
type PipeEnd struct {
	local    Address
	handlers *handlerTable
	inbox    *inbox

	mu      sync.Mutex
	peer    *PipeEnd
	closed  bool
	drop    DropFunc
	sendErr error
	sent    int
}

// NewPipe returns two connected in-memory transports identified as a and b.
func NewPipe(a, b Address) (*PipeEnd, *PipeEnd) {
	left := &PipeEnd{local: a, handlers: newHandlerTable(), inbox: newInbox()}
	right := &PipeEnd{local: b, handlers: newHandlerTable(), inbox: newInbox()}
	left.peer = right
	right.peer = left
	return left, right
}

// RegisterHandler registers a handler for a message id.
func (p *PipeEnd) RegisterHandler(msgID uint32, handler Handler) {
	p.handlers.register(msgID, handler)
}

// Send queues msg at the peer end.
func (p *PipeEnd) Send(msg message.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.sendErr != nil {
		err := p.sendErr
		p.mu.Unlock()
		return err
	}
	p.sent++
	drop := p.drop
	peer := p.peer
	p.mu.Unlock()

	if drop != nil && drop(msg) {
		logrus.WithFields(logrus.Fields{
			"function":   "Send",
			"local":      p.local.String(),
			"message_id": msg.GetID(),
		}).Debug("Pipe dropped message")
		return nil
	}

	peer.inbox.push(&Envelope{
		SystemID:    p.local.SystemID,
		ComponentID: p.local.ComponentID,
		Message:     msg,
	})
	return nil
}

// LocalAddr returns the identity of this end.
func (p *PipeEnd) LocalAddr() Address {
	return p.local
}

// Close marks the end closed. Further sends fail with ErrClosed.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Pump delivers every message queued at this end and returns how many were
// delivered. Messages queued by handlers during the pump are left for the
// next call.
func (p *PipeEnd) Pump() int {
	envs := p.inbox.drain()
	for _, env := range envs {
		p.handlers.dispatch(env)
	}
	return len(envs)
}

// Pending returns the number of messages waiting to be pumped.
func (p *PipeEnd) Pending() int {
	return p.inbox.len()
}

// SetDropFunc installs a filter for outgoing messages. A nil func drops nothing.
func (p *PipeEnd) SetDropFunc(drop DropFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drop = drop
}

// SetSendError makes every following Send fail with err until reset with nil.
func (p *PipeEnd) SetSendError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// Sent returns the number of successful Send calls, dropped ones included.
func (p *PipeEnd) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// PumpAll pumps both ends until neither has anything queued or rounds is
// exhausted. It returns the total number of delivered messages.
func PumpAll(rounds int, ends ...*PipeEnd) int {
	total := 0
	for i := 0; i < rounds; i++ {
		n := 0
		for _, end := range ends {
			n += end.Pump()
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

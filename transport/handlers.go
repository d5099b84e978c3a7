package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// handlerTable maps message ids to registered handlers.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[uint32][]Handler
}

func newHandlerTable() *handlerTable {
	return &handlerTable{handlers: make(map[uint32][]Handler)}
}

func (h *handlerTable) register(msgID uint32, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgID] = append(h.handlers[msgID], handler)
}

// dispatch runs every handler registered for the envelope's message id.
func (h *handlerTable) dispatch(env *Envelope) int {
	if env == nil || env.Message == nil {
		return 0
	}
	msgID := env.Message.GetID()

	h.mu.RLock()
	handlers := append([]Handler(nil), h.handlers[msgID]...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(env); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "dispatch",
				"message_id": msgID,
				"from":       env.Sender().String(),
				"error":      err.Error(),
			}).Warn("Handler rejected inbound message")
		}
	}
	return len(handlers)
}

// inbox is an unbounded FIFO of inbound envelopes. Pushing never blocks,
// so the link reader is never held up by a slow handler.
type inbox struct {
	mu     sync.Mutex
	queue  []*Envelope
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (q *inbox) push(env *Envelope) {
	q.mu.Lock()
	q.queue = append(q.queue, env)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *inbox) drain() []*Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queue
	q.queue = nil
	return out
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

package command

import (
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/opd-ai/groundlink/transport"
)

// mockTransport records sent messages and lets tests inject inbound ones.
type mockTransport struct {
	mu       sync.Mutex
	local    transport.Address
	sent     []message.Message
	handlers map[uint32][]transport.Handler
	sendErr  error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		local:    transport.Address{SystemID: 245, ComponentID: 190},
		handlers: make(map[uint32][]transport.Handler),
	}
}

func (m *mockTransport) Send(msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) LocalAddr() transport.Address { return m.local }

func (m *mockTransport) RegisterHandler(msgID uint32, handler transport.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[msgID] = append(m.handlers[msgID], handler)
}

func (m *mockTransport) setSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// simulateReceive delivers msg as if it came from sys/comp.
func (m *mockTransport) simulateReceive(sys, comp uint8, msg message.Message) {
	m.mu.Lock()
	handlers := append([]transport.Handler(nil), m.handlers[msg.GetID()]...)
	m.mu.Unlock()

	env := &transport.Envelope{SystemID: sys, ComponentID: comp, Message: msg}
	for _, h := range handlers {
		_ = h(env)
	}
}

// sentCommands returns the command ids of every sent message in order.
func (m *mockTransport) sentCommands() []common.MAV_CMD {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.MAV_CMD, 0, len(m.sent))
	for _, msg := range m.sent {
		switch c := msg.(type) {
		case *common.MessageCommandLong:
			out = append(out, c.Command)
		case *common.MessageCommandInt:
			out = append(out, c.Command)
		}
	}
	return out
}

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockTransport) lastSent() message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// resultRecorder collects callback invocations.
type resultRecorder struct {
	mu       sync.Mutex
	results  []Result
	progress []float32
}

func (r *resultRecorder) callback(result Result, progress float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.progress = append(r.progress, progress)
}

func (r *resultRecorder) terminal() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Result
	for _, res := range r.results {
		if res.Terminal() {
			out = append(out, res)
		}
	}
	return out
}

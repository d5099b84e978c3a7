package ftp

import (
	"sync"
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/opd-ai/groundlink/transport"
	"github.com/stretchr/testify/require"
)

var (
	groundAddr  = transport.Address{SystemID: 245, ComponentID: 190}
	vehicleAddr = transport.Address{SystemID: 1, ComponentID: 1}
)

// mockTransport records sent messages and lets tests inject inbound ones.
type mockTransport struct {
	mu       sync.Mutex
	local    transport.Address
	sent     []*common.MessageFileTransferProtocol
	handlers map[uint32][]transport.Handler
	sendErr  error
}

func newMockTransport(local transport.Address) *mockTransport {
	return &mockTransport{
		local:    local,
		handlers: make(map[uint32][]transport.Handler),
	}
}

func (m *mockTransport) Send(msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	if fm, ok := msg.(*common.MessageFileTransferProtocol); ok {
		copied := *fm
		m.sent = append(m.sent, &copied)
	}
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

// simulateReceive delivers p as if it came from sender.
func (m *mockTransport) simulateReceive(sender transport.Address, p *Packet) {
	m.simulateReceiveMessage(sender, &common.MessageFileTransferProtocol{
		TargetSystem:    m.local.SystemID,
		TargetComponent: m.local.ComponentID,
		Payload:         p.Encode(),
	})
}

func (m *mockTransport) simulateReceiveMessage(sender transport.Address, msg *common.MessageFileTransferProtocol) {
	m.mu.Lock()
	handlers := append([]transport.Handler(nil), m.handlers[msg.GetID()]...)
	m.mu.Unlock()

	env := &transport.Envelope{SystemID: sender.SystemID, ComponentID: sender.ComponentID, Message: msg}
	for _, h := range handlers {
		_ = h(env)
	}
}

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// sentPackets decodes every sent payload in order.
func (m *mockTransport) sentPackets(t *testing.T) []*Packet {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Packet, 0, len(m.sent))
	for _, msg := range m.sent {
		p, err := DecodePacket(msg.Payload[:])
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func (m *mockTransport) lastPacket(t *testing.T) *Packet {
	t.Helper()
	packets := m.sentPackets(t)
	require.NotEmpty(t, packets, "nothing was sent")
	return packets[len(packets)-1]
}

func (m *mockTransport) lastMessage() *common.MessageFileTransferProtocol {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// countOpcode returns how many sent packets carry opcode.
func (m *mockTransport) countOpcode(t *testing.T, opcode Opcode) int {
	n := 0
	for _, p := range m.sentPackets(t) {
		if p.Opcode == opcode {
			n++
		}
	}
	return n
}

// transferRecorder collects TransferCallback invocations.
type transferRecorder struct {
	mu       sync.Mutex
	results  []ClientResult
	progress []Progress
}

func (r *transferRecorder) callback(result ClientResult, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.progress = append(r.progress, p)
}

func (r *transferRecorder) terminal() []ClientResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ClientResult
	for _, res := range r.results {
		if res != Next {
			out = append(out, res)
		}
	}
	return out
}

// resultRecorder collects ResultCallback invocations.
type resultRecorder struct {
	mu      sync.Mutex
	results []ClientResult
}

func (r *resultRecorder) callback(result ClientResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) get() []ClientResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ClientResult(nil), r.results...)
}

// ackFor builds the Ack a server would send for req.
func ackFor(req *Packet) *Packet {
	return &Packet{Seq: req.Seq + 1, Opcode: OpAck, ReqOpcode: req.Opcode}
}

// nakFor builds a Nak for req carrying result and extra bytes.
func nakFor(req *Packet, result ServerResult, extra ...byte) *Packet {
	p := &Packet{Seq: req.Seq + 1, ReqOpcode: req.Opcode}
	p.nak(result, extra...)
	return p
}

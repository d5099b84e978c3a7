package transport

import (
	"errors"
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport closed")

// Address is the MAVLink identity of a node on the link.
type Address struct {
	SystemID    uint8
	ComponentID uint8
}

// String returns the address as "system/component".
func (a Address) String() string {
	return fmt.Sprintf("%d/%d", a.SystemID, a.ComponentID)
}

// Envelope is an inbound message together with the identity of its sender.
type Envelope struct {
	SystemID    uint8
	ComponentID uint8
	Message     message.Message
}

// Sender returns the sender address of the envelope.
func (e *Envelope) Sender() Address {
	return Address{SystemID: e.SystemID, ComponentID: e.ComponentID}
}

// Handler processes an inbound message.
type Handler func(env *Envelope) error

// Transport defines the interface for the message bus used by groundlink engines.
// This abstraction allows real links and in-memory pipes to be used
// interchangeably throughout the codebase.
type Transport interface {
	// Send transmits a message to the link.
	Send(msg message.Message) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the system and component id this transport sends as.
	LocalAddr() Address

	// RegisterHandler registers a handler for a message id. Several handlers
	// may be registered for the same id; they run in registration order.
	RegisterHandler(msgID uint32, handler Handler)
}

// MessageID returns the MAVLink message id of msg.
func MessageID(msg message.Message) uint32 {
	return msg.GetID()
}

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/sirupsen/logrus"
)

// NodeConfig configures a NodeTransport.
type NodeConfig struct {
	// Endpoints the node reads from and writes to.
	Endpoints []gomavlib.EndpointConf
	// SystemID and ComponentID are stamped on every outgoing frame.
	SystemID    uint8
	ComponentID uint8
	// SigningKey enables MAVLink v2 signing for outgoing and incoming frames.
	SigningKey *frame.V2Key
	// HeartbeatDisable stops the node from emitting its own heartbeat.
	HeartbeatDisable bool
}

// NodeTransport implements Transport on top of a gomavlib node.
type NodeTransport struct {
	node     *gomavlib.Node
	local    Address
	handlers *handlerTable
	inbox    *inbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNodeTransport opens the configured endpoints and starts reading.
func NewNodeTransport(conf NodeConfig) (*NodeTransport, error) {
	if len(conf.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}
	if conf.SystemID == 0 {
		return nil, fmt.Errorf("system id must be non-zero")
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:        conf.Endpoints,
		Dialect:          common.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      conf.SystemID,
		OutComponentID:   conf.ComponentID,
		InKey:            conf.SigningKey,
		OutKey:           conf.SigningKey,
		HeartbeatDisable: conf.HeartbeatDisable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mavlink node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &NodeTransport{
		node:     node,
		local:    Address{SystemID: conf.SystemID, ComponentID: conf.ComponentID},
		handlers: newHandlerTable(),
		inbox:    newInbox(),
		ctx:      ctx,
		cancel:   cancel,
	}

	t.wg.Add(2)
	go t.readEvents()
	go t.dispatchLoop()

	logrus.WithFields(logrus.Fields{
		"function":  "NewNodeTransport",
		"local":     t.local.String(),
		"endpoints": len(conf.Endpoints),
		"signing":   conf.SigningKey != nil,
	}).Info("MAVLink node transport started")

	return t, nil
}

// RegisterHandler registers a handler for a message id.
func (t *NodeTransport) RegisterHandler(msgID uint32, handler Handler) {
	t.handlers.register(msgID, handler)
}

// Send writes msg to every endpoint of the node.
func (t *NodeTransport) Send(msg message.Message) error {
	select {
	case <-t.ctx.Done():
		return ErrClosed
	default:
	}
	return t.node.WriteMessageAll(msg)
}

// LocalAddr returns the identity frames are sent with.
func (t *NodeTransport) LocalAddr() Address {
	return t.local
}

// Close stops the node and waits for the reader and dispatcher to exit.
func (t *NodeTransport) Close() error {
	select {
	case <-t.ctx.Done():
		return nil
	default:
	}
	t.cancel()
	t.node.Close()
	t.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"local":    t.local.String(),
	}).Info("MAVLink node transport closed")
	return nil
}

// readEvents moves decoded frames from the node into the inbox.
func (t *NodeTransport) readEvents() {
	defer t.wg.Done()

	for evt := range t.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			t.inbox.push(&Envelope{
				SystemID:    e.SystemID(),
				ComponentID: e.ComponentID(),
				Message:     e.Message(),
			})

		case *gomavlib.EventChannelOpen:
			logrus.WithFields(logrus.Fields{
				"function": "readEvents",
				"channel":  e.Channel.String(),
			}).Info("Channel opened")

		case *gomavlib.EventChannelClose:
			logrus.WithFields(logrus.Fields{
				"function": "readEvents",
				"channel":  e.Channel.String(),
			}).Info("Channel closed")

		case *gomavlib.EventParseError:
			logrus.WithFields(logrus.Fields{
				"function": "readEvents",
				"error":    e.Error.Error(),
			}).Debug("Dropped unparsable frame")
		}
	}
}

// dispatchLoop hands queued envelopes to handlers one at a time.
func (t *NodeTransport) dispatchLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.inbox.signal:
			for _, env := range t.inbox.drain() {
				t.handlers.dispatch(env)
			}
		}
	}
}

// Package transport implements the message bus groundlink engines talk through.
//
// A Transport delivers decoded MAVLink messages to handlers registered per
// message id and accepts fully built messages for transmission. The wire
// codec is gomavlib's: messages are the structs of
// github.com/bluenviron/gomavlib/v3/pkg/dialects/common.
//
// Two implementations are provided:
//
//   - NodeTransport wraps a gomavlib node and speaks to real UDP, TCP or
//     serial endpoints.
//   - Pipe connects two in-memory ends, used to run a client against a
//     server in-process and in tests. Delivery is explicit via Pump so that
//     the cooperative single-threaded model stays deterministic.
//
// Example:
//
//	ep, err := transport.ParseEndpoint("udps:0.0.0.0:14550")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t, err := transport.NewNodeTransport(transport.NodeConfig{
//	    Endpoints:   []gomavlib.EndpointConf{ep},
//	    SystemID:    245,
//	    ComponentID: 190,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	t.RegisterHandler(transport.MessageID(&common.MessageCommandAck{}), func(env *transport.Envelope) error {
//	    ack := env.Message.(*common.MessageCommandAck)
//	    fmt.Println("ack for", ack.Command)
//	    return nil
//	})
//
// Handlers are invoked sequentially from a single dispatch goroutine (or from
// the goroutine calling Pump), never concurrently with each other.
package transport

package transport

import (
	"errors"
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	groundAddr  = Address{SystemID: 245, ComponentID: 190}
	vehicleAddr = Address{SystemID: 1, ComponentID: 1}
)

func TestPipeDeliversOnPump(t *testing.T) {
	ground, vehicle := NewPipe(groundAddr, vehicleAddr)

	var got []*Envelope
	vehicle.RegisterHandler(MessageID(&common.MessageCommandLong{}), func(env *Envelope) error {
		got = append(got, env)
		return nil
	})

	require.NoError(t, ground.Send(&common.MessageCommandLong{Command: 400}))
	assert.Empty(t, got, "Send must not deliver synchronously")
	assert.Equal(t, 1, vehicle.Pending())

	assert.Equal(t, 1, vehicle.Pump())
	require.Len(t, got, 1)
	assert.Equal(t, groundAddr, got[0].Sender())
	assert.Equal(t, common.MAV_CMD(400), got[0].Message.(*common.MessageCommandLong).Command)
	assert.Equal(t, 0, vehicle.Pending())
}

func TestPipeMultipleHandlersRunInOrder(t *testing.T) {
	ground, vehicle := NewPipe(groundAddr, vehicleAddr)

	var order []string
	id := MessageID(&common.MessageFileTransferProtocol{})
	vehicle.RegisterHandler(id, func(*Envelope) error {
		order = append(order, "first")
		return errors.New("not for me")
	})
	vehicle.RegisterHandler(id, func(*Envelope) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, ground.Send(&common.MessageFileTransferProtocol{}))
	vehicle.Pump()

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPipeUnhandledMessageIsDiscarded(t *testing.T) {
	ground, vehicle := NewPipe(groundAddr, vehicleAddr)
	require.NoError(t, ground.Send(&common.MessageHeartbeat{}))
	assert.Equal(t, 1, vehicle.Pump())
	assert.Equal(t, 0, vehicle.Pending())
}

func TestPipeDropFunc(t *testing.T) {
	ground, vehicle := NewPipe(groundAddr, vehicleAddr)

	count := 0
	vehicle.RegisterHandler(MessageID(&common.MessageCommandLong{}), func(*Envelope) error {
		count++
		return nil
	})

	dropped := 0
	ground.SetDropFunc(func(msg message.Message) bool {
		dropped++
		return dropped == 1
	})

	require.NoError(t, ground.Send(&common.MessageCommandLong{}))
	require.NoError(t, ground.Send(&common.MessageCommandLong{}))
	vehicle.Pump()

	assert.Equal(t, 1, count)
	assert.Equal(t, 2, ground.Sent())
}

func TestPipeSendErrorAndClose(t *testing.T) {
	ground, _ := NewPipe(groundAddr, vehicleAddr)

	failure := errors.New("link down")
	ground.SetSendError(failure)
	assert.ErrorIs(t, ground.Send(&common.MessageCommandLong{}), failure)

	ground.SetSendError(nil)
	assert.NoError(t, ground.Send(&common.MessageCommandLong{}))

	require.NoError(t, ground.Close())
	assert.ErrorIs(t, ground.Send(&common.MessageCommandLong{}), ErrClosed)
}

func TestPumpAllStopsWhenQuiet(t *testing.T) {
	ground, vehicle := NewPipe(groundAddr, vehicleAddr)

	// Vehicle answers each command with an ack, ground does not answer acks.
	vehicle.RegisterHandler(MessageID(&common.MessageCommandLong{}), func(env *Envelope) error {
		cmd := env.Message.(*common.MessageCommandLong)
		return vehicle.Send(&common.MessageCommandAck{Command: cmd.Command})
	})
	acks := 0
	ground.RegisterHandler(MessageID(&common.MessageCommandAck{}), func(*Envelope) error {
		acks++
		return nil
	})

	require.NoError(t, ground.Send(&common.MessageCommandLong{Command: 1}))
	require.NoError(t, ground.Send(&common.MessageCommandLong{Command: 2}))

	assert.Equal(t, 4, PumpAll(10, ground, vehicle))
	assert.Equal(t, 2, acks)
}

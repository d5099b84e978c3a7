package command

import (
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/stretchr/testify/assert"
)

func TestIdentifyDisambiguators(t *testing.T) {
	req := func(msgID, param2 float32) Identification {
		c := NewLong(common.MAV_CMD_REQUEST_MESSAGE, 1, 1)
		c.Params[0] = msgID
		c.Params[1] = param2
		return c.Identify()
	}

	// Requests for different messages are different requests.
	assert.NotEqual(t, req(33, 0), req(24, 0))
	assert.Equal(t, uint32(33), req(33, 0).Disambiguator1)

	// param2 only matters for CAMERA_IMAGE_CAPTURED.
	assert.Equal(t, req(33, 1), req(33, 2))
	assert.NotEqual(t, req(cameraImageCapturedID, 1), req(cameraImageCapturedID, 2))

	interval := NewLong(common.MAV_CMD_SET_MESSAGE_INTERVAL, 1, 1)
	interval.Params[0] = 30.4
	assert.Equal(t, uint32(30), interval.Identify().Disambiguator1)

	// Other commands ignore their params.
	a := NewLong(common.MAV_CMD_COMPONENT_ARM_DISARM, 1, 1)
	b := NewLong(common.MAV_CMD_COMPONENT_ARM_DISARM, 1, 1)
	b.Params[0] = 1
	assert.Equal(t, a.Identify(), b.Identify())

	// Targets are part of the identification.
	assert.NotEqual(t, a.Identify(), NewLong(common.MAV_CMD_COMPONENT_ARM_DISARM, 2, 1).Identify())
}

func TestIdentifyUnsetParamIsZero(t *testing.T) {
	c := NewLong(common.MAV_CMD_REQUEST_MESSAGE, 1, 1)
	assert.Equal(t, uint32(0), c.Identify().Disambiguator1)
}

func TestResultStrings(t *testing.T) {
	assert.Equal(t, "Success", Success.String())
	assert.Equal(t, "TemporarilyRejected", TemporarilyRejected.String())
	assert.Equal(t, "Result(99)", Result(99).String())
	assert.False(t, InProgress.Terminal())
	assert.True(t, Timeout.Terminal())
	assert.NoError(t, Success.Err())
	assert.EqualError(t, Denied.Err(), "command failed: Denied")
}

func TestResultFromAck(t *testing.T) {
	r, ok := resultFromAck(common.MAV_RESULT_ACCEPTED)
	assert.True(t, ok)
	assert.Equal(t, Success, r)

	_, ok = resultFromAck(common.MAV_RESULT(200))
	assert.False(t, ok)
}

func TestAutopilotString(t *testing.T) {
	assert.Equal(t, "px4", AutopilotPX4.String())
	assert.Equal(t, "ardupilot", AutopilotArduPilot.String())
	assert.Equal(t, "unknown", AutopilotUnknown.String())
}

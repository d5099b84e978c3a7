package command

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// cameraImageCapturedID is the message id of CAMERA_IMAGE_CAPTURED.
const cameraImageCapturedID = 263

// Unset marks a parameter the caller did not set. It is sent as NaN to PX4
// and as 0 to ArduPilot.
var Unset = float32(math.NaN())

// Autopilot selects how unset parameters are encoded.
type Autopilot int

const (
	AutopilotUnknown Autopilot = iota
	AutopilotPX4
	AutopilotArduPilot
)

func (a Autopilot) String() string {
	switch a {
	case AutopilotPX4:
		return "px4"
	case AutopilotArduPilot:
		return "ardupilot"
	default:
		return "unknown"
	}
}

// Command is a COMMAND_LONG or a COMMAND_INT. The set of implementations
// is closed.
type Command interface {
	// Identify returns the identification used for deduplication and ack matching.
	Identify() Identification

	encode(autopilot Autopilot) message.Message
}

// Identification decides whether two commands are the same outstanding request.
type Identification struct {
	Command         common.MAV_CMD
	Disambiguator1  uint32
	Disambiguator2  uint32
	TargetSystem    uint8
	TargetComponent uint8
}

// Long is a COMMAND_LONG with seven float parameters.
type Long struct {
	TargetSystem    uint8
	TargetComponent uint8
	Command         common.MAV_CMD
	Confirmation    uint8
	Params          [7]float32
}

// NewLong returns a COMMAND_LONG with every parameter Unset.
func NewLong(cmd common.MAV_CMD, targetSystem, targetComponent uint8) *Long {
	c := &Long{TargetSystem: targetSystem, TargetComponent: targetComponent, Command: cmd}
	for i := range c.Params {
		c.Params[i] = Unset
	}
	return c
}

// Identify implements Command.
func (c *Long) Identify() Identification {
	return identify(c.Command, c.Params[0], c.Params[1], c.TargetSystem, c.TargetComponent)
}

func (c *Long) encode(autopilot Autopilot) message.Message {
	p := c.Params
	for i := range p {
		p[i] = encodeParam(p[i], autopilot)
	}
	return &common.MessageCommandLong{
		TargetSystem:    c.TargetSystem,
		TargetComponent: c.TargetComponent,
		Command:         c.Command,
		Confirmation:    c.Confirmation,
		Param1:          p[0],
		Param2:          p[1],
		Param3:          p[2],
		Param4:          p[3],
		Param5:          p[4],
		Param6:          p[5],
		Param7:          p[6],
	}
}

// Int is a COMMAND_INT carrying a frame and integer coordinates.
type Int struct {
	TargetSystem    uint8
	TargetComponent uint8
	Frame           common.MAV_FRAME
	Command         common.MAV_CMD
	Current         bool
	Autocontinue    bool
	Params          [4]float32
	X               int32
	Y               int32
	Z               float32
}

// NewInt returns a COMMAND_INT in the relative altitude frame with every
// float parameter Unset.
func NewInt(cmd common.MAV_CMD, targetSystem, targetComponent uint8) *Int {
	c := &Int{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Frame:           common.MAV_FRAME_GLOBAL_RELATIVE_ALT,
		Command:         cmd,
		Z:               Unset,
	}
	for i := range c.Params {
		c.Params[i] = Unset
	}
	return c
}

// Identify implements Command.
func (c *Int) Identify() Identification {
	return identify(c.Command, c.Params[0], c.Params[1], c.TargetSystem, c.TargetComponent)
}

func (c *Int) encode(autopilot Autopilot) message.Message {
	return &common.MessageCommandInt{
		TargetSystem:    c.TargetSystem,
		TargetComponent: c.TargetComponent,
		Frame:           c.Frame,
		Command:         c.Command,
		Current:         boolToUint8(c.Current),
		Autocontinue:    boolToUint8(c.Autocontinue),
		Param1:          encodeParam(c.Params[0], autopilot),
		Param2:          encodeParam(c.Params[1], autopilot),
		Param3:          encodeParam(c.Params[2], autopilot),
		Param4:          encodeParam(c.Params[3], autopilot),
		X:               c.X,
		Y:               c.Y,
		Z:               encodeParam(c.Z, autopilot),
	}
}

// identify fills the disambiguators for commands whose id alone does not
// name the request: message requests and interval changes differ by the
// message id in param1, and camera image requests by the index in param2.
func identify(cmd common.MAV_CMD, param1, param2 float32, sys, comp uint8) Identification {
	id := Identification{Command: cmd, TargetSystem: sys, TargetComponent: comp}

	switch cmd {
	case common.MAV_CMD_REQUEST_MESSAGE:
		id.Disambiguator1 = roundParam(param1)
		if id.Disambiguator1 == cameraImageCapturedID {
			id.Disambiguator2 = roundParam(param2)
		}
	case common.MAV_CMD_SET_MESSAGE_INTERVAL:
		id.Disambiguator1 = roundParam(param1)
	}
	return id
}

func roundParam(v float32) uint32 {
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	return uint32(math.Round(float64(v)))
}

func encodeParam(v float32, autopilot Autopilot) float32 {
	if autopilot == AutopilotArduPilot && math.IsNaN(float64(v)) {
		return 0
	}
	return v
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Package device defines the instruction vocabulary shared by every robot
// backend and the capability the decision loop drives.
package device

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Instruction enumerates discrete actuator commands.
type Instruction int

const (
	MoveForward Instruction = iota
	MoveLeft
	MoveRight
	MoveBack
	MoveLongRight
	RequestFrontCam
	RequestRearCam
	RequestProxSensor
	DumpCans
	BrushOn
	BrushOff
	ExtendBackdoor
	StopAll
)

// ErrNoOpcode is returned for instructions that have no serial character.
var ErrNoOpcode = errors.New("instruction has no opcode")

var opcodes = map[Instruction]byte{
	MoveForward:       'a',
	MoveLeft:          'i',
	MoveRight:         'd',
	MoveBack:          'r',
	MoveLongRight:     'D',
	RequestProxSensor: 's',
	DumpCans:          'c',
	BrushOn:           'P',
	BrushOff:          'p',
	ExtendBackdoor:    'e',
	StopAll:           'S',
}

func (i Instruction) String() string {
	switch i {
	case MoveForward:
		return "move_forward"
	case MoveLeft:
		return "move_left"
	case MoveRight:
		return "move_right"
	case MoveBack:
		return "move_back"
	case MoveLongRight:
		return "move_long_right"
	case RequestFrontCam:
		return "request_front_cam"
	case RequestRearCam:
		return "request_rear_cam"
	case RequestProxSensor:
		return "request_prox_sensor"
	case DumpCans:
		return "dump_cans"
	case BrushOn:
		return "brush_on"
	case BrushOff:
		return "brush_off"
	case ExtendBackdoor:
		return "extend_backdoor"
	case StopAll:
		return "stop_all"
	default:
		return "unknown"
	}
}

// Opcode returns the ASCII character sent on the serial link.
func (i Instruction) Opcode() (byte, error) {
	op, ok := opcodes[i]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoOpcode, i)
	}
	return op, nil
}

// FrameSource yields camera frames and proximity readings. Returned frames
// are BGR, owned by the caller and must be closed.
type FrameSource interface {
	FrontFrame() (gocv.Mat, error)
	RearFrame() (gocv.Mat, error)
	ProximityVector() ([]int, error)
}

// ActuatorSink executes instructions. Each call returns only after the
// backend acknowledged it.
type ActuatorSink interface {
	SendInstruction(Instruction) error
	DumpCans(n int) error
}

// Device is implemented by the simulator client and the hardware driver.
type Device interface {
	FrameSource
	ActuatorSink
	Close() error
}

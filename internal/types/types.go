package types

import "time"

type MachineState string

const (
	StateIdle         MachineState = "idle"
	StateEngageHold   MachineState = "engage-hold"
	StateAccelerating MachineState = "accelerating"
	StateBraking      MachineState = "braking"
	StateReturning    MachineState = "returning"
	StateJogging      MachineState = "jogging"
	StateFault        MachineState = "fault"
)

// MotorDirection is the commanded direction of the drive motor.
type MotorDirection int

const (
	DirectionStopped MotorDirection = 0
	DirectionForward MotorDirection = 1
	DirectionReverse MotorDirection = -1
)

func (d MotorDirection) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionReverse:
		return "reverse"
	default:
		return "stopped"
	}
}

// JogDirection is the position of the three-way jog switch.
type JogDirection int

const (
	JogNeutral JogDirection = 0
	JogForward JogDirection = 1
	JogReverse JogDirection = -1
)

// InputSnapshot is the atomic per-tick capture of every software-visible
// input. The control loop reads it once at the top of a tick and never
// re-samples mid-tick.
type InputSnapshot struct {
	Engage       bool
	Go           bool
	Return       bool
	Jog          JogDirection
	ReturnSensor bool
	EStop        bool

	// PulseDelta is the number of rotation sensor pulses accumulated since
	// the previous snapshot.
	PulseDelta int

	At time.Time
}

// OutputCommand is recomputed every tick and applied idempotently to the
// physical outputs. It is never persisted.
type OutputCommand struct {
	MotorDirection MotorDirection
	MotorDuty      int // 0..100
	BrakeEngaged   bool
	JogForward     bool
	JogReverse     bool
	EngageLed      bool
	ReturnLed      bool
	GoLed          bool
}

// SafeCommand is the uniform de-energized failure posture: motor stopped,
// brake engaged, all LEDs dark.
func SafeCommand() OutputCommand {
	return OutputCommand{
		MotorDirection: DirectionStopped,
		MotorDuty:      0,
		BrakeEngaged:   true,
	}
}

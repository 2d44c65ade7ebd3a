package fsm

import "github.com/librescoot/librefsm"

// Machine states
const (
	// StateOperational is the parent of every non-fault state so that a
	// single parent-level transition handles interlock preemption.
	StateOperational librefsm.StateID = "operational"

	StateIdle         librefsm.StateID = "idle"
	StateEngageHold   librefsm.StateID = "engage-hold"
	StateAccelerating librefsm.StateID = "accelerating"
	StateBraking      librefsm.StateID = "braking"
	StateReturning    librefsm.StateID = "returning"
	StateJogging      librefsm.StateID = "jogging"
	StateFault        librefsm.StateID = "fault"
)

// Machine events
const (
	// Operator inputs (edge-detected each control tick)
	EvEngagePressed  librefsm.EventID = "engage-pressed"
	EvEngageReleased librefsm.EventID = "engage-released"
	EvGoPressed      librefsm.EventID = "go-pressed"
	EvReturnPressed  librefsm.EventID = "return-pressed"
	EvJogEngaged     librefsm.EventID = "jog-engaged"
	EvJogReleased    librefsm.EventID = "jog-released"

	// Tick-derived conditions
	EvAccelComplete librefsm.EventID = "accel-complete"
	EvBrakeSettled  librefsm.EventID = "brake-settled"
	EvReturnHomed   librefsm.EventID = "return-homed"
	EvReturnTimeout librefsm.EventID = "return-timeout"

	// Interlock
	EvFault      librefsm.EventID = "fault"
	EvFaultReset librefsm.EventID = "fault-reset"
)

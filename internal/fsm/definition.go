package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the launch sequencer definition. All operating
// states share the operational parent, which carries the single edge into
// fault, so no state can dodge an interlock preemption.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateOperational).
		State(StateIdle,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterIdle),
		).
		State(StateEngageHold,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterEngageHold),
		).
		State(StateAccelerating,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterAccelerating),
			librefsm.WithOnExit(actions.ExitAccelerating),
		).
		State(StateBraking,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterBraking),
		).
		State(StateReturning,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterReturning),
			librefsm.WithOnExit(actions.ExitReturning),
		).
		State(StateJogging,
			librefsm.WithParent(StateOperational),
			librefsm.WithOnEnter(actions.EnterJogging),
		).
		State(StateFault,
			librefsm.WithOnEnter(actions.EnterFault),
		).

		// === Transitions ===

		// From Idle: engage must be held before anything else is possible.
		Transition(StateIdle, EvEngagePressed, StateEngageHold,
			librefsm.WithGuard(actions.InterlockClear),
		).

		// From EngageHold
		Transition(StateEngageHold, EvEngageReleased, StateIdle).
		Transition(StateEngageHold, EvGoPressed, StateAccelerating,
			librefsm.WithGuard(actions.PositionKnown), // homing required after (re)start
		).
		Transition(StateEngageHold, EvJogEngaged, StateJogging).
		Transition(StateEngageHold, EvReturnPressed, StateReturning).

		// The only way into braking is through the end of the
		// acceleration zone.
		Transition(StateAccelerating, EvAccelComplete, StateBraking).

		// From Braking: brake must be confirmed and the loop stopped.
		Transition(StateBraking, EvBrakeSettled, StateIdle).
		Transition(StateBraking, EvReturnPressed, StateReturning,
			librefsm.WithGuard(actions.IsStopped),
		).

		// From Returning
		Transition(StateReturning, EvReturnHomed, StateIdle).
		Transition(StateReturning, EvReturnTimeout, StateFault).

		// From Jogging: releasing the switch drops back to engage-hold if
		// the button is still held, otherwise all the way to idle.
		Transition(StateJogging, EvJogReleased, StateEngageHold,
			librefsm.WithGuard(actions.IsEngageHeld),
		).
		Transition(StateJogging, EvJogReleased, StateIdle).
		Transition(StateJogging, EvEngageReleased, StateIdle).

		// Interlock preemption from any operating state.
		Transition(StateOperational, EvFault, StateFault).

		// Fault exits only through an explicit operator reset.
		Transition(StateFault, EvFaultReset, StateIdle,
			librefsm.WithGuard(actions.CanReset),
			librefsm.WithAction(actions.OnFaultReset),
		).

		// Initial state
		Initial(StateIdle)
}

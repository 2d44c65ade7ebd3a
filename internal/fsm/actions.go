package fsm

import "github.com/librescoot/librefsm"

// Actions is the interface the launch system implements to give the state
// machine its entry/exit behavior and transition guards.
type Actions interface {
	// State entry actions
	EnterIdle(c *librefsm.Context) error
	EnterEngageHold(c *librefsm.Context) error
	EnterAccelerating(c *librefsm.Context) error
	EnterBraking(c *librefsm.Context) error
	EnterReturning(c *librefsm.Context) error
	EnterJogging(c *librefsm.Context) error
	EnterFault(c *librefsm.Context) error

	// State exit actions
	ExitAccelerating(c *librefsm.Context) error
	ExitReturning(c *librefsm.Context) error

	// Transition actions
	OnFaultReset(c *librefsm.Context) error // clears latched interlock flags

	// Guards for conditional transitions
	InterlockClear(c *librefsm.Context) bool // no interlock flag is active
	PositionKnown(c *librefsm.Context) bool  // loop has been homed since power-up
	IsEngageHeld(c *librefsm.Context) bool   // engage button currently held
	IsStopped(c *librefsm.Context) bool      // velocity estimate effectively zero
	CanReset(c *librefsm.Context) bool       // config re-validates and flags cleared
}

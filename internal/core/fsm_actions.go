package core

import (
	"context"
	"time"

	"github.com/librescoot/librefsm"

	"github.com/Combatjuan/orphan-maker/internal/fsm"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

// Ensure LaunchSystem implements fsm.Actions
var _ fsm.Actions = (*LaunchSystem)(nil)

// stateIDToMachineState converts a librefsm StateID to types.MachineState
func stateIDToMachineState(id librefsm.StateID) types.MachineState {
	switch id {
	case fsm.StateIdle:
		return types.StateIdle
	case fsm.StateEngageHold:
		return types.StateEngageHold
	case fsm.StateAccelerating:
		return types.StateAccelerating
	case fsm.StateBraking:
		return types.StateBraking
	case fsm.StateReturning:
		return types.StateReturning
	case fsm.StateJogging:
		return types.StateJogging
	case fsm.StateFault:
		return types.StateFault
	default:
		return types.MachineState(string(id))
	}
}

// initFSM builds and starts the launch sequencer
func (s *LaunchSystem) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(s)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	s.machine = machine

	s.machine.OnStateChange(func(from, to librefsm.StateID) {
		oldState := stateIDToMachineState(from)
		newState := stateIDToMachineState(to)

		s.mu.Lock()
		s.state = newState
		s.mu.Unlock()

		s.logger.Infof("State transition: %s -> %s", oldState, newState)

		// Publish using the known new state rather than reading it back
		// through the machine, which holds its own lock here.
		if err := s.redis.PublishMachineState(newState); err != nil {
			s.logger.Errorf("Failed to publish state: %v", err)
		}
	})

	if err := s.machine.Start(ctx); err != nil {
		return err
	}

	s.logger.Infof("Launch sequencer started")
	return nil
}

// === State Entry Actions ===

func (s *LaunchSystem) EnterIdle(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterIdle")
	return nil
}

func (s *LaunchSystem) EnterEngageHold(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterEngageHold")
	return nil
}

func (s *LaunchSystem) EnterAccelerating(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterAccelerating")

	s.mu.Lock()
	s.runStartedAt = time.Now()
	s.runPeakSpeed = 0
	s.mu.Unlock()

	s.logger.Infof("Launch started")
	return nil
}

func (s *LaunchSystem) EnterBraking(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterBraking")

	s.mu.RLock()
	d := s.est.DistanceFromStart
	v := s.est.Velocity
	s.mu.RUnlock()
	s.logger.Infof("End of acceleration zone at %.2f m, %.2f m/s, braking", d, v)
	return nil
}

func (s *LaunchSystem) EnterReturning(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterReturning")

	s.mu.Lock()
	distance := s.est.DistanceFromStart
	known := s.est.Known
	s.runStartedAt = time.Now()
	timeout := s.cfg.ReturnTimeout(distance, known)
	s.returnDeadline = time.Now().Add(timeout)
	s.mu.Unlock()

	s.logger.Infof("Returning from %.2f m (known=%v), timeout %v", distance, known, timeout)
	return nil
}

func (s *LaunchSystem) EnterJogging(c *librefsm.Context) error {
	s.logger.Debugf("FSM: EnterJogging")
	return nil
}

func (s *LaunchSystem) EnterFault(c *librefsm.Context) error {
	s.mu.RLock()
	reason := s.faultReason
	s.mu.RUnlock()
	if reason == "" {
		reason = "unspecified fault"
	}

	s.logger.Errorf("FAULT: %s", reason)
	if err := s.redis.PublishFault(reason); err != nil {
		s.logger.Warnf("Failed to publish fault: %v", err)
	}
	return nil
}

// === State Exit Actions ===

func (s *LaunchSystem) ExitAccelerating(c *librefsm.Context) error {
	s.mu.RLock()
	duration := time.Since(s.runStartedAt)
	peak := s.runPeakSpeed
	s.mu.RUnlock()

	s.logger.Infof("Run complete: %.2fs, peak %.2f m/s", duration.Seconds(), peak)
	if err := s.redis.PublishRunStats(duration, peak); err != nil {
		s.logger.Warnf("Failed to publish run stats: %v", err)
	}
	return nil
}

func (s *LaunchSystem) ExitReturning(c *librefsm.Context) error {
	s.mu.Lock()
	duration := time.Since(s.runStartedAt)
	s.returnDeadline = time.Time{}
	s.mu.Unlock()

	s.logger.Infof("Return finished after %.2fs", duration.Seconds())
	return nil
}

// === Transition Actions ===

func (s *LaunchSystem) OnFaultReset(c *librefsm.Context) error {
	s.mu.RLock()
	estop := s.snap.EStop
	s.mu.RUnlock()

	if !s.interlock.Reset(estop) {
		s.logger.Warnf("Interlock refused reset, cause still present")
	}

	s.mu.Lock()
	s.faultReason = ""
	s.mu.Unlock()

	s.logger.Infof("Fault cleared, machine back to idle")
	return nil
}

// === Guards ===

func (s *LaunchSystem) InterlockClear(c *librefsm.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.status.Any()
}

func (s *LaunchSystem) PositionKnown(c *librefsm.Context) bool {
	return s.estimator.Known()
}

func (s *LaunchSystem) IsEngageHeld(c *librefsm.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Engage
}

func (s *LaunchSystem) IsStopped(c *librefsm.Context) bool {
	s.mu.RLock()
	est := s.est
	s.mu.RUnlock()
	return s.isStopped(est)
}

func (s *LaunchSystem) CanReset(c *librefsm.Context) bool {
	if err := s.cfg.Validate(); err != nil {
		s.logger.Warnf("Reset blocked, config still invalid: %v", err)
		return false
	}
	s.mu.RLock()
	estop := s.snap.EStop
	s.mu.RUnlock()
	if estop {
		s.logger.Warnf("Reset blocked, emergency stop still active")
		return false
	}
	return true
}

// Package profile computes the motor direction and PWM duty for whatever
// mode the sequencer has put the machine in. It holds no state of its own
// beyond the jog ramp counter.
package profile

import (
	"math"

	"github.com/Combatjuan/orphan-maker/internal/config"
	"github.com/Combatjuan/orphan-maker/internal/fusion"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

// launchFloorDuty is the minimum duty commanded inside the acceleration
// zone. The sqrt profile targets zero speed at zero distance, so without a
// floor the loop would never break away from rest.
const launchFloorDuty = 10

// Profiler maps (state, estimate) to a drive command each tick.
type Profiler struct {
	cfg config.Config

	// jogTicks counts ticks since jogging began, for the ramp.
	jogTicks int
}

func New(cfg config.Config) *Profiler {
	return &Profiler{cfg: cfg}
}

// TargetVelocity is the speed the loop should be moving at distance d into
// the acceleration zone. Constant-acceleration kinematics: monotonically
// increasing, exactly MaxSpeed at the end of the zone.
func (p *Profiler) TargetVelocity(d float64) float64 {
	if d <= 0 {
		return 0
	}
	if d >= p.cfg.AccelLength {
		return p.cfg.MaxSpeed
	}
	return p.cfg.MaxSpeed * math.Sqrt(d/p.cfg.AccelLength)
}

// Compute returns the output command for the current mode. Only the motor
// fields and brake request are filled in; LEDs belong to the sequencer.
func (p *Profiler) Compute(state types.MachineState, est fusion.Estimate, jog types.JogDirection) types.OutputCommand {
	switch state {
	case types.StateAccelerating:
		return p.accelerate(est)
	case types.StateBraking:
		return types.OutputCommand{
			MotorDirection: types.DirectionStopped,
			MotorDuty:      0,
			BrakeEngaged:   true,
		}
	case types.StateReturning:
		return types.OutputCommand{
			MotorDirection: types.DirectionReverse,
			MotorDuty:      clampDuty(p.cfg.JogSpeed * 100),
			BrakeEngaged:   false,
		}
	case types.StateJogging:
		return p.jogCommand(jog)
	default:
		p.jogTicks = 0
		cmd := types.SafeCommand()
		if state == types.StateEngageHold {
			// Holding engage releases the brake so the operator can set
			// the line; the motor stays stopped.
			cmd.BrakeEngaged = false
		}
		return cmd
	}
}

// accelerate runs the closed loop: feed-forward duty for the target speed
// at this distance, plus a proportional correction for the speed error.
// Both gains are operator-tunable configuration, not constants.
func (p *Profiler) accelerate(est fusion.Estimate) types.OutputCommand {
	p.jogTicks = 0
	vt := p.TargetVelocity(est.DistanceFromStart)
	base := p.cfg.FeedforwardGain * 100 * vt / p.cfg.MaxSpeed
	duty := base + p.cfg.Kp*(vt-est.Velocity)
	if duty < launchFloorDuty {
		duty = launchFloorDuty
	}
	return types.OutputCommand{
		MotorDirection: types.DirectionForward,
		MotorDuty:      clampDuty(duty),
		BrakeEngaged:   false,
	}
}

// jogCommand ramps duty from zero to the jog duty over a few ticks so the
// line never jerks during precision positioning.
func (p *Profiler) jogCommand(jog types.JogDirection) types.OutputCommand {
	if jog == types.JogNeutral {
		p.jogTicks = 0
		return types.OutputCommand{MotorDirection: types.DirectionStopped}
	}

	if p.jogTicks < p.cfg.JogRampTicks {
		p.jogTicks++
	}
	duty := p.cfg.JogSpeed * 100 * float64(p.jogTicks) / float64(p.cfg.JogRampTicks)

	cmd := types.OutputCommand{
		MotorDuty:    clampDuty(duty),
		BrakeEngaged: false,
	}
	switch jog {
	case types.JogForward:
		cmd.MotorDirection = types.DirectionForward
		cmd.JogForward = true
	case types.JogReverse:
		cmd.MotorDirection = types.DirectionReverse
		cmd.JogReverse = true
	}
	return cmd
}

func clampDuty(d float64) int {
	if d < 0 {
		return 0
	}
	if d > 100 {
		return 100
	}
	return int(math.Round(d))
}

package profile

import (
	"testing"

	"github.com/Combatjuan/orphan-maker/internal/config"
	"github.com/Combatjuan/orphan-maker/internal/fusion"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

func TestTargetVelocityEndpoints(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	if v := p.TargetVelocity(-1); v != 0 {
		t.Errorf("target before the zone = %v, want 0", v)
	}
	if v := p.TargetVelocity(0); v != 0 {
		t.Errorf("target at zero distance = %v, want 0", v)
	}
	if v := p.TargetVelocity(cfg.AccelLength); v != cfg.MaxSpeed {
		t.Errorf("target at the end of the zone = %v, want %v", v, cfg.MaxSpeed)
	}
	if v := p.TargetVelocity(cfg.AccelLength * 2); v != cfg.MaxSpeed {
		t.Errorf("target past the zone = %v, want %v", v, cfg.MaxSpeed)
	}
}

func TestTargetVelocityMonotonic(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	step := cfg.AccelLength / 50
	prev := p.TargetVelocity(0)
	for d := step; d <= cfg.AccelLength; d += step {
		v := p.TargetVelocity(d)
		if v < prev {
			t.Fatalf("target velocity dropped from %v to %v at %v m", prev, v, d)
		}
		prev = v
	}
}

func TestAccelerateBreaksAwayFromRest(t *testing.T) {
	p := New(config.Default())

	cmd := p.Compute(types.StateAccelerating, fusion.Estimate{Known: true}, types.JogNeutral)
	if cmd.MotorDirection != types.DirectionForward {
		t.Errorf("acceleration must drive forward, got %s", cmd.MotorDirection)
	}
	if cmd.MotorDuty < launchFloorDuty {
		t.Errorf("duty at rest = %d, must be at least the launch floor %d", cmd.MotorDuty, launchFloorDuty)
	}
	if cmd.BrakeEngaged {
		t.Error("brake must be released while accelerating")
	}
}

func TestAccelerateBacksOffWhenFast(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	mid := fusion.Estimate{DistanceFromStart: cfg.AccelLength / 2, Velocity: cfg.MaxSpeed * 3, Known: true}
	fast := p.Compute(types.StateAccelerating, mid, types.JogNeutral)

	slow := p.Compute(types.StateAccelerating,
		fusion.Estimate{DistanceFromStart: cfg.AccelLength / 2, Velocity: 0, Known: true}, types.JogNeutral)

	if fast.MotorDuty >= slow.MotorDuty {
		t.Errorf("overspeed duty %d should be below underspeed duty %d", fast.MotorDuty, slow.MotorDuty)
	}
	if fast.MotorDuty < launchFloorDuty {
		t.Errorf("duty must never drop below the launch floor inside the zone, got %d", fast.MotorDuty)
	}
}

func TestDutyNeverExceedsFullScale(t *testing.T) {
	cfg := config.Default()
	cfg.Kp = 1000
	p := New(cfg)

	est := fusion.Estimate{DistanceFromStart: cfg.AccelLength / 2, Velocity: -10, Known: true}
	if cmd := p.Compute(types.StateAccelerating, est, types.JogNeutral); cmd.MotorDuty > 100 {
		t.Errorf("duty = %d, must clamp at 100", cmd.MotorDuty)
	}
}

func TestBrakingDropsDriveAndEngagesBrake(t *testing.T) {
	p := New(config.Default())

	cmd := p.Compute(types.StateBraking, fusion.Estimate{Velocity: 5, Known: true}, types.JogNeutral)
	if cmd.MotorDuty != 0 || cmd.MotorDirection != types.DirectionStopped {
		t.Errorf("braking must cut the drive, got %+v", cmd)
	}
	if !cmd.BrakeEngaged {
		t.Error("braking must engage the brake")
	}
}

func TestReturningDrivesReverseAtJogSpeed(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	cmd := p.Compute(types.StateReturning, fusion.Estimate{}, types.JogNeutral)
	if cmd.MotorDirection != types.DirectionReverse {
		t.Errorf("return must drive reverse, got %s", cmd.MotorDirection)
	}
	if want := int(cfg.JogSpeed * 100); cmd.MotorDuty != want {
		t.Errorf("return duty = %d, want %d", cmd.MotorDuty, want)
	}
}

func TestJogRampsToJogDuty(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	var last int
	for i := 0; i < cfg.JogRampTicks; i++ {
		cmd := p.Compute(types.StateJogging, fusion.Estimate{}, types.JogForward)
		if cmd.MotorDuty < last {
			t.Fatalf("jog ramp went backwards at tick %d", i)
		}
		if !cmd.JogForward || cmd.JogReverse {
			t.Fatalf("jog outputs wrong for forward jog: %+v", cmd)
		}
		last = cmd.MotorDuty
	}
	if want := int(cfg.JogSpeed * 100); last != want {
		t.Errorf("jog duty after the ramp = %d, want %d", last, want)
	}
}

func TestJogRampRestartsAfterNeutral(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	for i := 0; i < cfg.JogRampTicks; i++ {
		p.Compute(types.StateJogging, fusion.Estimate{}, types.JogReverse)
	}
	p.Compute(types.StateIdle, fusion.Estimate{}, types.JogNeutral)

	cmd := p.Compute(types.StateJogging, fusion.Estimate{}, types.JogReverse)
	full := int(cfg.JogSpeed * 100)
	if cmd.MotorDuty >= full {
		t.Errorf("ramp must restart after neutral, got %d immediately", cmd.MotorDuty)
	}
	if cmd.MotorDirection != types.DirectionReverse || !cmd.JogReverse {
		t.Errorf("reverse jog outputs wrong: %+v", cmd)
	}
}

func TestEngageHoldReleasesBrakeOnly(t *testing.T) {
	p := New(config.Default())

	cmd := p.Compute(types.StateEngageHold, fusion.Estimate{}, types.JogNeutral)
	if cmd.BrakeEngaged {
		t.Error("engage-hold must release the brake")
	}
	if cmd.MotorDirection != types.DirectionStopped || cmd.MotorDuty != 0 {
		t.Errorf("engage-hold must not drive the motor, got %+v", cmd)
	}
}

func TestIdleAndFaultAreSafe(t *testing.T) {
	p := New(config.Default())

	for _, state := range []types.MachineState{types.StateIdle, types.StateFault} {
		cmd := p.Compute(state, fusion.Estimate{Velocity: 3}, types.JogForward)
		if cmd != types.SafeCommand() {
			t.Errorf("%s must produce the safe command, got %+v", state, cmd)
		}
	}
}

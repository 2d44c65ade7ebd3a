package hardware

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/Combatjuan/orphan-maker/internal/config"
	"github.com/Combatjuan/orphan-maker/internal/logger"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

// LinuxHardwareIO drives the machine's control box through the GPIO
// character device plus one sysfs PWM channel for the motor speed signal.
type LinuxHardwareIO struct {
	logger *logger.Logger
	pins   config.Pins

	chip    *gpiocdev.Chip
	inputs  map[string]*gpiocdev.Line
	outputs map[string]*gpiocdev.Line

	// pulses accumulates rotation sensor edges between snapshots.
	pulses atomic.Int64

	pwm *PwmChannel

	// last written values, to keep Apply idempotent at the syscall level.
	lastOut  map[string]bool
	lastDuty int
}

func NewLinuxHardwareIO(pins config.Pins, l *logger.Logger) *LinuxHardwareIO {
	return &LinuxHardwareIO{
		logger:   l.WithTag("hw"),
		pins:     pins,
		inputs:   make(map[string]*gpiocdev.Line),
		outputs:  make(map[string]*gpiocdev.Line),
		lastOut:  make(map[string]bool),
		lastDuty: -1,
	}
}

func (io *LinuxHardwareIO) Initialize() error {
	io.logger.Infof("Initializing hardware IO on %s", io.pins.Chip)

	chip, err := gpiocdev.NewChip(io.pins.Chip, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %s: %w", io.pins.Chip, err)
	}
	io.chip = chip

	inputs := map[string]int{
		"engage":        io.pins.Engage,
		"go":            io.pins.Go,
		"return":        io.pins.Return,
		"jog_forward":   io.pins.JogForward,
		"jog_reverse":   io.pins.JogReverse,
		"return_sensor": io.pins.ReturnSensor,
		"estop":         io.pins.EStop,
	}
	for name, offset := range inputs {
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithDebounce(DebouncePeriod))
		if err != nil {
			return fmt.Errorf("failed to request input %s (line %d): %w", name, offset, err)
		}
		io.inputs[name] = line
		io.logger.Debugf("Configured DI %s: line=%d", name, offset)
	}

	// The rotation sensor is requested undebounced with an edge handler so
	// no pulse is lost between ticks.
	rotation, err := chip.RequestLine(io.pins.Rotation,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventRisingEdge {
				io.pulses.Add(1)
			}
		}))
	if err != nil {
		return fmt.Errorf("failed to request rotation sensor (line %d): %w", io.pins.Rotation, err)
	}
	io.inputs["rotation"] = rotation

	outputs := map[string]int{
		"motor_forward":   io.pins.MotorForward,
		"motor_reverse":   io.pins.MotorReverse,
		"brake_release":   io.pins.BrakeRelease,
		"jog_forward_out": io.pins.JogFwdOut,
		"jog_reverse_out": io.pins.JogRevOut,
		"engage_led":      io.pins.EngageLed,
		"return_led":      io.pins.ReturnLed,
		"go_led":          io.pins.GoLed,
	}
	for name, offset := range outputs {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			return fmt.Errorf("failed to request output %s (line %d): %w", name, offset, err)
		}
		io.outputs[name] = line
		io.lastOut[name] = false
		io.logger.Debugf("Configured DO %s: line=%d", name, offset)
	}

	io.pwm = NewPwmChannel(io.pins.PwmChip, io.pins.PwmChannel, io.logger)
	if err := io.pwm.Init(); err != nil {
		return fmt.Errorf("failed to initialize motor PWM: %w", err)
	}

	io.logger.Infof("Hardware IO initialized")
	return nil
}

// Snapshot captures every input exactly once. The control loop calls this
// at the top of each tick and works from the copy; nothing is re-sampled
// mid-tick.
func (io *LinuxHardwareIO) Snapshot() (types.InputSnapshot, error) {
	snap := types.InputSnapshot{At: time.Now()}

	read := func(name string) (bool, error) {
		line, ok := io.inputs[name]
		if !ok {
			return false, fmt.Errorf("unknown input channel: %s", name)
		}
		v, err := line.Value()
		if err != nil {
			return false, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return v != 0, nil
	}

	var err error
	if snap.Engage, err = read("engage"); err != nil {
		return snap, err
	}
	if snap.Go, err = read("go"); err != nil {
		return snap, err
	}
	if snap.Return, err = read("return"); err != nil {
		return snap, err
	}
	jogFwd, err := read("jog_forward")
	if err != nil {
		return snap, err
	}
	jogRev, err := read("jog_reverse")
	if err != nil {
		return snap, err
	}
	switch {
	case jogFwd && !jogRev:
		snap.Jog = types.JogForward
	case jogRev && !jogFwd:
		snap.Jog = types.JogReverse
	default:
		// Both active is a wiring problem; treat it as neutral.
		snap.Jog = types.JogNeutral
	}
	if snap.ReturnSensor, err = read("return_sensor"); err != nil {
		return snap, err
	}

	// The E-Stop mirror is a normally-closed loop: line low means the
	// button is pressed or the wire is cut. Either way: stop.
	closed, err := read("estop")
	if err != nil {
		return snap, err
	}
	snap.EStop = !closed

	snap.PulseDelta = int(io.pulses.Swap(0))
	return snap, nil
}

// Apply writes one tick's output command. Direction lines are made
// mutually exclusive by always clearing before setting, and unchanged
// values are not rewritten.
func (io *LinuxHardwareIO) Apply(cmd types.OutputCommand) error {
	// Drop the active direction line first when the direction changes, so
	// forward and reverse are never high together even transiently.
	if cmd.MotorDirection != types.DirectionForward {
		if err := io.write("motor_forward", false); err != nil {
			return err
		}
	}
	if cmd.MotorDirection != types.DirectionReverse {
		if err := io.write("motor_reverse", false); err != nil {
			return err
		}
	}
	if cmd.MotorDirection == types.DirectionForward {
		if err := io.write("motor_forward", true); err != nil {
			return err
		}
	}
	if cmd.MotorDirection == types.DirectionReverse {
		if err := io.write("motor_reverse", true); err != nil {
			return err
		}
	}

	if cmd.MotorDuty != io.lastDuty {
		if err := io.pwm.SetDuty(cmd.MotorDuty); err != nil {
			return err
		}
		io.lastDuty = cmd.MotorDuty
	}

	// The brake line energizes to release: power loss means brake on.
	if err := io.write("brake_release", !cmd.BrakeEngaged); err != nil {
		return err
	}
	if err := io.write("jog_forward_out", cmd.JogForward); err != nil {
		return err
	}
	if err := io.write("jog_reverse_out", cmd.JogReverse); err != nil {
		return err
	}
	if err := io.write("engage_led", cmd.EngageLed); err != nil {
		return err
	}
	if err := io.write("return_led", cmd.ReturnLed); err != nil {
		return err
	}
	return io.write("go_led", cmd.GoLed)
}

func (io *LinuxHardwareIO) write(name string, value bool) error {
	if prev, ok := io.lastOut[name]; ok && prev == value {
		return nil
	}
	line, ok := io.outputs[name]
	if !ok {
		return fmt.Errorf("unknown output channel: %s", name)
	}
	val := 0
	if value {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", name, value, err)
	}
	io.lastOut[name] = value
	io.logger.Debugf("Set DO %s=%v", name, value)
	return nil
}

// Cleanup forces the safe posture and releases every line.
func (io *LinuxHardwareIO) Cleanup() {
	io.logger.Infof("Cleaning up hardware resources")

	if err := io.Apply(types.SafeCommand()); err != nil {
		io.logger.Errorf("Failed to apply safe outputs during cleanup: %v", err)
	}

	if io.pwm != nil {
		io.pwm.Cleanup()
	}
	for name, line := range io.inputs {
		line.Close()
		io.logger.Debugf("Closed input line %s", name)
	}
	for name, line := range io.outputs {
		line.Close()
		io.logger.Debugf("Closed output line %s", name)
	}
	if io.chip != nil {
		io.chip.Close()
	}
	io.logger.Infof("Hardware cleanup complete")
}

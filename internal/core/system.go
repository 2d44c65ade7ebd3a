package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"github.com/Combatjuan/orphan-maker/internal/config"
	"github.com/Combatjuan/orphan-maker/internal/fsm"
	"github.com/Combatjuan/orphan-maker/internal/fusion"
	"github.com/Combatjuan/orphan-maker/internal/logger"
	"github.com/Combatjuan/orphan-maker/internal/messaging"
	"github.com/Combatjuan/orphan-maker/internal/profile"
	"github.com/Combatjuan/orphan-maker/internal/safety"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

const (
	// stoppedFraction of max speed is the threshold below which the loop
	// counts as stationary. Pulse quantization makes a true zero reading
	// unreliable at low speeds.
	stoppedFraction = 0.02

	// acceptableTickLatency is the hard ceiling on one control tick. A tick
	// that overruns it means the process can no longer guarantee its
	// reaction time, which is itself a fault.
	acceptableTickLatency = 100 * time.Millisecond

	// telemetryDivisor publishes telemetry every Nth tick.
	telemetryDivisor = 10

	// blinkDivisor toggles the go lamp every N ticks while homing is still
	// required.
	blinkDivisor = 25
)

// LaunchSystem owns the control loop: it snapshots the inputs, runs the
// estimator and the interlock, feeds edge events to the sequencer, and
// applies the profiler's output command. The sequencer is the only writer
// of the machine state.
type LaunchSystem struct {
	cfg       config.Config
	logger    *logger.Logger
	io        HardwareIO
	redis     MessagingClient
	machine   *librefsm.Machine
	estimator *fusion.Estimator
	profiler  *profile.Profiler
	interlock *safety.Interlock

	mu          sync.RWMutex
	state       types.MachineState
	snap        types.InputSnapshot
	est         fusion.Estimate
	status      safety.Status
	faultReason string

	// lastDriven is the direction the motor last actively drove the line.
	// Pulses are signed with it, so coasting after the drive drops to zero
	// still accumulates in the direction the loop is moving.
	lastDriven types.MotorDirection

	brake          brakeLine
	returnDeadline time.Time
	runStartedAt   time.Time
	runPeakSpeed   float64

	tickCount   uint64
	initialized bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewLaunchSystem wires the control core together. The hardware and
// messaging dependencies are interfaces so tests can drive the loop without
// a GPIO chip or a Redis server.
func NewLaunchSystem(cfg config.Config, io HardwareIO, redis MessagingClient, l *logger.Logger) *LaunchSystem {
	return &LaunchSystem{
		cfg:        cfg,
		logger:     l.WithTag("core"),
		io:         io,
		redis:      redis,
		estimator:  fusion.NewEstimator(cfg),
		profiler:   profile.New(cfg),
		interlock:  safety.New(cfg.Validate() != nil),
		state:      types.StateIdle,
		lastDriven: types.DirectionForward,
	}
}

// Start brings the system up: Redis first, then hardware, then the
// sequencer, and finally the control loop and command listeners.
func (s *LaunchSystem) Start() error {
	s.logger.Infof("Starting launch control system")

	s.redis.SetCallbacks(messaging.Callbacks{
		ResetCallback: s.handleResetRequest,
	})
	if err := s.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := s.io.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}

	// Lamp check: light the whole panel while the sequencer comes up. The
	// first tick overwrites it with the idle posture.
	lampTest := types.SafeCommand()
	lampTest.EngageLed = true
	lampTest.GoLed = true
	lampTest.ReturnLed = true
	if err := s.io.Apply(lampTest); err != nil {
		s.logger.Warnf("Lamp check failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})

	if err := s.initFSM(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start state machine: %w", err)
	}

	if err := s.redis.PublishMachineState(types.StateIdle); err != nil {
		s.logger.Warnf("Failed to publish initial state: %v", err)
	}

	s.initialized = true
	go s.run(ctx)

	if err := s.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	s.logger.Infof("System started, control loop at %d Hz", s.cfg.TickRate)
	return nil
}

// Shutdown stops the control loop and de-energizes the outputs.
func (s *LaunchSystem) Shutdown() {
	s.logger.Infof("Shutting down")

	if s.loopCancel != nil {
		s.loopCancel()
		<-s.loopDone
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Warnf("Error closing Redis client: %v", err)
	}
	s.io.Cleanup()

	s.logger.Infof("Shutdown complete")
}

// run is the control loop. One fixed-period ticker drives everything; no
// other goroutine touches the outputs.
func (s *LaunchSystem) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.TickPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := time.Now()
			s.tick()
			if elapsed := time.Since(started); elapsed > acceptableTickLatency {
				s.logger.Errorf("Control tick took %v, over the %v budget", elapsed, acceptableTickLatency)
				s.declareFault(fmt.Sprintf("control loop overran its deadline (%v)", elapsed))
			}
		}
	}
}

// tick runs one pass of the snapshot -> estimate -> interlock -> sequence ->
// profile -> apply pipeline.
func (s *LaunchSystem) tick() {
	snap, err := s.io.Snapshot()
	if err != nil {
		// Inputs are gone; fail closed and flag it.
		s.logger.Errorf("Input snapshot failed: %v", err)
		if err := s.io.Apply(types.SafeCommand()); err != nil {
			s.logger.Errorf("Failed to apply safe command: %v", err)
		}
		s.declareFault(fmt.Sprintf("input snapshot failed: %v", err))
		return
	}

	s.mu.RLock()
	prev := s.snap
	lastDriven := s.lastDriven
	deadline := s.returnDeadline
	s.mu.RUnlock()

	est := s.estimator.Update(snap.PulseDelta, lastDriven, snap.ReturnSensor, snap.At)
	rangeFault := s.estimator.RangeFault()

	state := s.currentState()
	timedOut := state == types.StateReturning && !deadline.IsZero() && snap.At.After(deadline)
	status := s.interlock.Evaluate(snap.EStop, rangeFault, timedOut)

	s.mu.Lock()
	s.snap = snap
	s.est = est
	s.status = status
	if state == types.StateAccelerating && est.Velocity > s.runPeakSpeed {
		s.runPeakSpeed = est.Velocity
	}
	s.mu.Unlock()

	if status.Any() && state != types.StateFault {
		s.sequenceFault(status, timedOut)
	} else if state != types.StateFault {
		s.deriveEvents(prev, snap, est)
	}

	state = s.currentState()
	cmd := s.profiler.Compute(state, est, snap.Jog)
	s.decorateLamps(&cmd, state, est)
	s.brake.Track(cmd.BrakeEngaged, snap.At)

	// The E-Stop acts on the outputs in the same tick it is read, before
	// the fault transition has even settled.
	if snap.EStop || state == types.StateFault {
		cmd = types.SafeCommand()
	}

	if cmd.MotorDirection != types.DirectionStopped {
		s.mu.Lock()
		s.lastDriven = cmd.MotorDirection
		s.mu.Unlock()
	}

	if err := s.io.Apply(cmd); err != nil {
		s.logger.Errorf("Failed to apply outputs: %v", err)
	}

	s.tickCount++
	if s.tickCount%telemetryDivisor == 0 {
		if err := s.redis.PublishTelemetry(messaging.Telemetry{
			Position: est.DistanceFromStart,
			Velocity: est.Velocity,
			Known:    est.Known,
		}); err != nil {
			s.logger.Debugf("Telemetry publish failed: %v", err)
		}
	}
}

// sequenceFault routes an active interlock into the sequencer. The return
// timeout keeps its own event so the transition log names the real cause.
func (s *LaunchSystem) sequenceFault(status safety.Status, timedOut bool) {
	reason := faultReason(status)
	s.mu.Lock()
	s.faultReason = reason
	s.mu.Unlock()

	ev := fsm.EvFault
	if timedOut {
		ev = fsm.EvReturnTimeout
	}
	if err := s.sendEvent(ev); err != nil {
		s.logger.Errorf("Failed to sequence fault (%s): %v", reason, err)
	}
}

// declareFault is for faults detected outside the interlock evaluation,
// like a snapshot failure or a tick overrun.
func (s *LaunchSystem) declareFault(reason string) {
	if s.currentState() == types.StateFault {
		return
	}
	s.mu.Lock()
	s.faultReason = reason
	s.mu.Unlock()
	if err := s.sendEvent(fsm.EvFault); err != nil {
		s.logger.Errorf("Failed to sequence fault (%s): %v", reason, err)
	}
}

// deriveEvents turns input edges and motion milestones into sequencer
// events. Events with no transition from the current state are ignored by
// the machine, which is exactly the panel semantics: an irrelevant button
// does nothing.
func (s *LaunchSystem) deriveEvents(prev, snap types.InputSnapshot, est fusion.Estimate) {
	if snap.Engage && !prev.Engage {
		s.sendEventLogged(fsm.EvEngagePressed)
	}
	if !snap.Engage && prev.Engage {
		s.sendEventLogged(fsm.EvEngageReleased)
	}
	if snap.Go && !prev.Go {
		// Launching against a brake that has not finished releasing drags
		// the pads; hold the press until the release delay has passed. The
		// state is re-read here because an engage edge earlier in this same
		// tick may have just moved the machine into engage-hold.
		if s.currentState() == types.StateEngageHold && !s.brake.ConfirmedReleased(s.cfg.BrakeDelay(), snap.At) {
			s.logger.Infof("Go pressed before the brake finished releasing, ignored")
		} else {
			s.sendEventLogged(fsm.EvGoPressed)
		}
	}
	if snap.Return && !prev.Return {
		s.sendEventLogged(fsm.EvReturnPressed)
	}
	if snap.Jog != types.JogNeutral && prev.Jog == types.JogNeutral {
		s.sendEventLogged(fsm.EvJogEngaged)
	}
	if snap.Jog == types.JogNeutral && prev.Jog != types.JogNeutral {
		s.sendEventLogged(fsm.EvJogReleased)
	}

	// The milestone checks also read the state fresh: the button edges
	// above may have already moved it this tick.
	switch s.currentState() {
	case types.StateAccelerating:
		if est.DistanceFromStart >= s.cfg.AccelLength {
			s.sendEventLogged(fsm.EvAccelComplete)
		}
	case types.StateBraking:
		if s.isStopped(est) && s.brake.ConfirmedEngaged(s.cfg.BrakeDelay(), snap.At) {
			s.sendEventLogged(fsm.EvBrakeSettled)
		}
	case types.StateReturning:
		if snap.ReturnSensor && !prev.ReturnSensor {
			s.sendEventLogged(fsm.EvReturnHomed)
		}
	}
}

// decorateLamps overlays the panel lamp pattern on the profiler's command.
func (s *LaunchSystem) decorateLamps(cmd *types.OutputCommand, state types.MachineState, est fusion.Estimate) {
	switch state {
	case types.StateEngageHold:
		cmd.EngageLed = true
		if est.Known {
			cmd.GoLed = true
		} else {
			// Blink until the loop has been homed.
			cmd.GoLed = (s.tickCount/blinkDivisor)%2 == 0
		}
	case types.StateJogging:
		cmd.EngageLed = true
	case types.StateAccelerating:
		cmd.GoLed = true
	case types.StateReturning:
		cmd.ReturnLed = true
	}
}

func (s *LaunchSystem) isStopped(est fusion.Estimate) bool {
	v := est.Velocity
	if v < 0 {
		v = -v
	}
	return v <= stoppedFraction*s.cfg.MaxSpeed
}

func (s *LaunchSystem) currentState() types.MachineState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// handleResetRequest is called from the Redis command listener when an
// operator asks to clear a fault.
func (s *LaunchSystem) handleResetRequest() error {
	s.logger.Infof("Fault reset requested")
	if s.currentState() != types.StateFault {
		s.logger.Infof("Reset ignored, machine is not faulted")
		return nil
	}
	if err := s.sendEvent(fsm.EvFaultReset); err != nil {
		return fmt.Errorf("reset rejected: %w", err)
	}
	return nil
}

func (s *LaunchSystem) sendEvent(event librefsm.EventID) error {
	return s.machine.SendSync(librefsm.Event{ID: event})
}

func (s *LaunchSystem) sendEventLogged(event librefsm.EventID) {
	if err := s.sendEvent(event); err != nil {
		s.logger.Errorf("Failed to send %s: %v", event, err)
	}
}

func faultReason(status safety.Status) string {
	switch {
	case status.EStopActive:
		return "emergency stop active"
	case status.ConsistencyFault:
		return "configuration is inconsistent"
	case status.SensorRangeFault:
		return "return sensor fired outside the plausible window"
	case status.ReturnTimeoutFault:
		return "return did not reach the start sensor in time"
	default:
		return "unknown interlock"
	}
}

// Package fusion turns raw rotation sensor pulses and the binary return
// sensor into a linear position and velocity estimate for the acceleration
// loop. The estimator is the only writer of the estimate; everyone else
// gets a copy.
package fusion

import (
	"time"

	"github.com/Combatjuan/orphan-maker/internal/config"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

// velocityWindow is how many past samples feed the smoothed derivative.
// New pulses enter the estimate on the tick they arrive; the window only
// trades pulse-quantization noise against response, so it is kept short.
const velocityWindow = 4

// Estimate is the fused view of where the loop is and how fast it is
// moving. DistanceFromStart is meaningless until Known is true, which
// happens on the first return sensor trigger after power-up.
type Estimate struct {
	DistanceFromStart float64
	Velocity          float64
	Known             bool
	At                time.Time
}

type sample struct {
	at       time.Time
	distance float64
}

// Estimator accumulates signed pulse counts into distance and keeps a short
// sliding window for velocity smoothing.
type Estimator struct {
	cfg config.Config

	distance   float64
	known      bool
	window     [velocityWindow]sample
	windowLen  int
	lastReturn bool

	rangeFault bool
}

func NewEstimator(cfg config.Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Update folds one tick of sensor data into the estimate. The pulse delta
// is signed by the direction the motor was commanded during the tick; the
// rotation sensor itself cannot tell forward from reverse.
func (e *Estimator) Update(pulseDelta int, direction types.MotorDirection, returnSensor bool, now time.Time) Estimate {
	e.distance += float64(pulseDelta) * float64(direction) * e.cfg.PulseResolution()

	// Rising edge of the return sensor is the only absolute position fix
	// the machine has.
	if returnSensor && !e.lastReturn {
		e.snapToStart()
	}
	e.lastReturn = returnSensor

	e.push(sample{at: now, distance: e.distance})

	return Estimate{
		DistanceFromStart: e.distance - e.cfg.StartPosition,
		Velocity:          e.velocity(),
		Known:             e.known,
		At:                now,
	}
}

func (e *Estimator) snapToStart() {
	if !e.known {
		// First fix since power-up: this trigger defines home.
		e.distance = e.cfg.StartPosition
		e.known = true
		e.windowLen = 0
		return
	}

	raw := e.distance - e.cfg.StartPosition
	if raw < -e.cfg.SensorRange || raw > e.cfg.SensorRange {
		// The dead-reckoned position disagrees with the sensor by more
		// than the configured tolerance. Do not snap; something slipped.
		e.rangeFault = true
		return
	}

	// Shift the window by the same correction so the snap does not show up
	// as a velocity spike.
	correction := e.cfg.StartPosition - e.distance
	e.distance = e.cfg.StartPosition
	for i := 0; i < e.windowLen; i++ {
		e.window[i].distance += correction
	}
}

// RangeFault reports and clears the pending out-of-tolerance flag. The
// safety interlock latches it; the estimator only raises it.
func (e *Estimator) RangeFault() bool {
	f := e.rangeFault
	e.rangeFault = false
	return f
}

// Known reports whether the loop has had a position fix since power-up.
func (e *Estimator) Known() bool {
	return e.known
}

func (e *Estimator) push(s sample) {
	if e.windowLen < velocityWindow {
		e.window[e.windowLen] = s
		e.windowLen++
		return
	}
	copy(e.window[:], e.window[1:])
	e.window[velocityWindow-1] = s
}

// velocity is the slope across the sliding window. Differencing over a few
// ticks rejects single-pulse jitter that a raw per-tick derivative would
// amplify at low speed.
func (e *Estimator) velocity() float64 {
	if e.windowLen < 2 {
		return 0
	}
	oldest := e.window[0]
	newest := e.window[e.windowLen-1]
	dt := newest.at.Sub(oldest.at).Seconds()
	if dt <= 0 {
		return 0
	}
	return (newest.distance - oldest.distance) / dt
}

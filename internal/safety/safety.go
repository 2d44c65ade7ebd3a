// Package safety evaluates the interlock conditions that may preempt the
// sequencer. It is the only component allowed to force the machine into the
// fault state.
package safety

import "sync"

// Status is the interlock view for one control tick. Any true flag forces
// the machine to fault and the outputs to the safe posture.
type Status struct {
	EStopActive        bool
	ConsistencyFault   bool
	SensorRangeFault   bool
	ReturnTimeoutFault bool
}

// Any reports whether any interlock condition is active.
func (s Status) Any() bool {
	return s.EStopActive || s.ConsistencyFault || s.SensorRangeFault || s.ReturnTimeoutFault
}

// Interlock latches fault flags across ticks. The E-Stop flag is never
// latched here: it is a live mirror of the hardware line, re-sampled every
// tick with no caching. Evaluate runs on the control loop while Reset runs
// from the state machine callbacks, so the latched flags are mutex guarded.
type Interlock struct {
	mu                 sync.Mutex
	consistencyFault   bool
	sensorRangeFault   bool
	returnTimeoutFault bool
}

// New creates an interlock. A true consistencyFault marks a configuration
// that failed validation; it never clears for the life of the process.
func New(consistencyFault bool) *Interlock {
	return &Interlock{consistencyFault: consistencyFault}
}

// Evaluate folds this tick's conditions into the latched state and returns
// the combined status. estop is the raw hardware line, rangeFault and
// timeoutFault are this tick's new occurrences.
func (i *Interlock) Evaluate(estop, rangeFault, timeoutFault bool) Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	if rangeFault {
		i.sensorRangeFault = true
	}
	if timeoutFault {
		i.returnTimeoutFault = true
	}
	return Status{
		EStopActive:        estop,
		ConsistencyFault:   i.consistencyFault,
		SensorRangeFault:   i.sensorRangeFault,
		ReturnTimeoutFault: i.returnTimeoutFault,
	}
}

// Reset clears the recoverable latched faults. It refuses while the E-Stop
// line is active and never touches a configuration fault: that one needs a
// corrected config and a restart.
func (i *Interlock) Reset(estop bool) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if estop || i.consistencyFault {
		return false
	}
	i.sensorRangeFault = false
	i.returnTimeoutFault = false
	return true
}

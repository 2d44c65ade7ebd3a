package core

import (
	"time"

	"github.com/Combatjuan/orphan-maker/internal/messaging"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed by LaunchSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// State and telemetry
	PublishMachineState(state types.MachineState) error
	PublishTelemetry(t messaging.Telemetry) error

	// Run records and faults
	PublishRunStats(duration time.Duration, peakSpeed float64) error
	PublishFault(reason string) error
}

// HardwareIO defines the interface for hardware I/O operations needed by LaunchSystem
type HardwareIO interface {
	Initialize() error
	Cleanup()

	// Snapshot reads every input line and drains the rotation pulse
	// counter in one call, so a control tick works from a single
	// consistent view of the panel and sensors.
	Snapshot() (types.InputSnapshot, error)

	// Apply drives the motor, brake and panel lamps from one command.
	Apply(cmd types.OutputCommand) error
}

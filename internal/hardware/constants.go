package hardware

import "time"

const (
	// Consumer label shown in gpioinfo for every requested line.
	Consumer = "orphan-maker"

	// DebouncePeriod is applied by the kernel to every switch input. The
	// rotation sensor line is requested without it so pulses are not eaten.
	DebouncePeriod = 5 * time.Millisecond

	// PwmPeriodNs is the carrier period of the motor speed signal (500 Hz,
	// matching the motor controller's input stage).
	PwmPeriodNs = 2_000_000

	PwmChipDir = "/sys/class/pwm"
)

package config

import (
	"fmt"
	"math"
	"time"

	"github.com/BurntSushi/toml"
)

// Hard limits on configurable values. A config file asking for more than
// these is a mistake, not a bigger machine.
const (
	MaxAllowedSpeed  = 15.0  // m/s
	MaxAllowedLength = 100.0 // m
	MinPulleyDiam    = 0.01  // m
)

// Config is the immutable-after-load parameter set for the machine. It is
// loaded once at startup, validated, and then only ever read.
type Config struct {
	// Physical profile of the run, all in meters and m/s.
	MaxSpeed       float64 `toml:"max_speed"`
	PulleyDiameter float64 `toml:"pulley_diameter"`
	PulsesPerRev   int     `toml:"pulses_per_rev"`
	AccelLength    float64 `toml:"accel_length"`
	BrakeLength    float64 `toml:"brake_length"`
	StartPosition  float64 `toml:"start_position"`
	LineLength     float64 `toml:"line_length"`
	SensorRange    float64 `toml:"sensor_range"`

	// BrakeDelaySeconds is how long the spring brake takes to reach full
	// stopping force after the disengage line drops.
	BrakeDelaySeconds float64 `toml:"brake_delay"`

	// JogSpeed is the jog and return duty as a fraction of full speed.
	JogSpeed float64 `toml:"jog_speed"`

	// LengthTolerance bounds how far line_length may disagree with
	// start_position + accel_length + brake_length before the machine
	// refuses to run.
	LengthTolerance float64 `toml:"length_tolerance"`

	// Control loop parameters.
	TickRate            int     `toml:"tick_rate"`             // Hz
	JogRampTicks        int     `toml:"jog_ramp_ticks"`        // ticks from 0 to jog duty
	ReturnTimeoutFactor float64 `toml:"return_timeout_factor"` // multiple of expected return time

	// Closed-loop gains for the acceleration profile. The duty commanded at
	// distance d is FeedforwardGain*100*v_target/max_speed + Kp*(v_target - v).
	Kp              float64 `toml:"kp"`
	FeedforwardGain float64 `toml:"feedforward_gain"`

	Pins Pins `toml:"pins"`
}

// Pins maps every input and output to a GPIO chip line. The two PWM-capable
// lines on the controller are reserved for the motor speed signal.
type Pins struct {
	Chip string `toml:"chip"`

	Engage       int `toml:"engage"`
	Go           int `toml:"go"`
	Return       int `toml:"return"`
	JogForward   int `toml:"jog_forward"`
	JogReverse   int `toml:"jog_reverse"`
	ReturnSensor int `toml:"return_sensor"`
	EStop        int `toml:"estop"`
	Rotation     int `toml:"rotation"`

	MotorForward int `toml:"motor_forward"`
	MotorReverse int `toml:"motor_reverse"`
	BrakeRelease int `toml:"brake_release"`
	JogFwdOut    int `toml:"jog_forward_out"`
	JogRevOut    int `toml:"jog_reverse_out"`
	EngageLed    int `toml:"engage_led"`
	ReturnLed    int `toml:"return_led"`
	GoLed        int `toml:"go_led"`

	PwmChip    int `toml:"pwm_chip"`
	PwmChannel int `toml:"pwm_channel"`
}

// Default returns the parameter set for the machine as built. A config file
// overrides it field by field.
func Default() Config {
	return Config{
		MaxSpeed:       5.0,
		PulleyDiameter: 0.23,
		PulsesPerRev:   4,
		AccelLength:    21.3,
		BrakeLength:    9.1,
		StartPosition:  3.7,
		LineLength:     34.1,
		SensorRange:    0.1,

		BrakeDelaySeconds: 1.5,
		JogSpeed:          0.2,
		LengthTolerance:   0.25,

		TickRate:            50,
		JogRampTicks:        5,
		ReturnTimeoutFactor: 2.0,

		Kp:              8.0,
		FeedforwardGain: 0.8,

		Pins: Pins{
			Chip:         "gpiochip0",
			Engage:       5,
			Go:           6,
			Return:       4,
			JogForward:   20,
			JogReverse:   21,
			ReturnSensor: 23,
			EStop:        24,
			Rotation:     25,
			MotorForward: 17,
			MotorReverse: 27,
			BrakeRelease: 22,
			JogFwdOut:    16,
			JogRevOut:    26,
			EngageLed:    19,
			ReturnLed:    13,
			GoLed:        18,
			PwmChip:      0,
			PwmChannel:   0,
		},
	}
}

// Load reads a TOML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the per-item allowed ranges and the cross-field
// invariants. Any violation is a configuration fault: the machine must not
// accept a single button press with a bad parameter set.
func (c Config) Validate() error {
	if c.MaxSpeed <= 0 || c.MaxSpeed > MaxAllowedSpeed {
		return fmt.Errorf("max_speed %.2f outside (0, %.0f] m/s", c.MaxSpeed, MaxAllowedSpeed)
	}
	if c.PulleyDiameter < MinPulleyDiam {
		return fmt.Errorf("pulley_diameter %.3f m is too small", c.PulleyDiameter)
	}
	if c.PulsesPerRev < 1 {
		return fmt.Errorf("pulses_per_rev must be at least 1, got %d", c.PulsesPerRev)
	}
	for name, v := range map[string]float64{
		"accel_length":   c.AccelLength,
		"brake_length":   c.BrakeLength,
		"start_position": c.StartPosition,
		"line_length":    c.LineLength,
	} {
		if v <= 0 || v > MaxAllowedLength {
			return fmt.Errorf("%s %.2f outside (0, %.0f] m", name, v, MaxAllowedLength)
		}
	}
	if c.SensorRange <= 0 {
		return fmt.Errorf("sensor_range must be positive, got %.3f", c.SensorRange)
	}
	if c.LengthTolerance <= 0 {
		return fmt.Errorf("length_tolerance must be positive, got %.3f", c.LengthTolerance)
	}
	if c.BrakeDelaySeconds < 0 {
		return fmt.Errorf("brake_delay must not be negative, got %.2f", c.BrakeDelaySeconds)
	}
	if c.JogSpeed <= 0 || c.JogSpeed > 1 {
		return fmt.Errorf("jog_speed %.2f outside (0, 1]", c.JogSpeed)
	}
	if c.TickRate < 10 || c.TickRate > 100 {
		return fmt.Errorf("tick_rate %d outside [10, 100] Hz", c.TickRate)
	}
	if c.JogRampTicks < 1 {
		return fmt.Errorf("jog_ramp_ticks must be at least 1, got %d", c.JogRampTicks)
	}
	if c.ReturnTimeoutFactor < 1 {
		return fmt.Errorf("return_timeout_factor %.2f below 1", c.ReturnTimeoutFactor)
	}
	if c.Kp < 0 || c.FeedforwardGain < 0 {
		return fmt.Errorf("control gains must not be negative (kp=%.2f, feedforward_gain=%.2f)", c.Kp, c.FeedforwardGain)
	}

	// The track segments must account for the whole line.
	sum := c.StartPosition + c.AccelLength + c.BrakeLength
	if diff := math.Abs(c.LineLength - sum); diff > c.LengthTolerance {
		return fmt.Errorf("line_length %.2f disagrees with start+accel+brake %.2f by %.2f m (tolerance %.2f)",
			c.LineLength, sum, diff, c.LengthTolerance)
	}

	// The spring brake takes brake_delay seconds to bite. At full speed the
	// loop covers max_speed*brake_delay meters in that window, so only the
	// remainder of the brake zone does any stopping.
	if c.EffectiveBrakeLength() <= 0 {
		return fmt.Errorf("brake_length %.2f m leaves no stopping distance after the %.2fs brake delay at %.2f m/s",
			c.BrakeLength, c.BrakeDelaySeconds, c.MaxSpeed)
	}

	return nil
}

// EffectiveBrakeLength is the stopping distance left once the brake has
// actually reached full force.
func (c Config) EffectiveBrakeLength() float64 {
	return c.BrakeLength - c.MaxSpeed*c.BrakeDelaySeconds
}

// PulseResolution is the distance one rotation sensor pulse represents.
func (c Config) PulseResolution() float64 {
	return math.Pi * c.PulleyDiameter / float64(c.PulsesPerRev)
}

// TickPeriod is the control loop period.
func (c Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// BrakeDelay is the brake engagement time as a duration.
func (c Config) BrakeDelay() time.Duration {
	return time.Duration(c.BrakeDelaySeconds * float64(time.Second))
}

// ReturnSpeed is the commanded line speed while retrieving the loop.
func (c Config) ReturnSpeed() float64 {
	return c.JogSpeed * c.MaxSpeed
}

// ReturnTimeout is how long a return may run from the given distance before
// it is declared failed. With an unknown position the full line length is
// assumed.
func (c Config) ReturnTimeout(distance float64, known bool) time.Duration {
	if !known || distance <= 0 || distance > c.LineLength {
		distance = c.LineLength
	}
	expected := distance / c.ReturnSpeed()
	return time.Duration(c.ReturnTimeoutFactor * expected * float64(time.Second))
}

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max speed", func(c *Config) { c.MaxSpeed = 0 }},
		{"excessive max speed", func(c *Config) { c.MaxSpeed = MaxAllowedSpeed + 1 }},
		{"tiny pulley", func(c *Config) { c.PulleyDiameter = 0.001 }},
		{"zero pulses per rev", func(c *Config) { c.PulsesPerRev = 0 }},
		{"negative accel length", func(c *Config) { c.AccelLength = -1 }},
		{"excessive line length", func(c *Config) { c.LineLength = MaxAllowedLength + 1 }},
		{"zero sensor range", func(c *Config) { c.SensorRange = 0 }},
		{"zero length tolerance", func(c *Config) { c.LengthTolerance = 0 }},
		{"negative brake delay", func(c *Config) { c.BrakeDelaySeconds = -0.5 }},
		{"jog speed above one", func(c *Config) { c.JogSpeed = 1.5 }},
		{"tick rate too slow", func(c *Config) { c.TickRate = 5 }},
		{"tick rate too fast", func(c *Config) { c.TickRate = 200 }},
		{"zero jog ramp", func(c *Config) { c.JogRampTicks = 0 }},
		{"timeout factor below one", func(c *Config) { c.ReturnTimeoutFactor = 0.5 }},
		{"negative gain", func(c *Config) { c.Kp = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestValidateRejectsSegmentSumMismatch(t *testing.T) {
	cfg := Default()
	cfg.LineLength = cfg.StartPosition + cfg.AccelLength + cfg.BrakeLength + cfg.LengthTolerance + 1
	if err := cfg.Validate(); err == nil {
		t.Error("line length off by more than the tolerance must fail")
	}

	cfg.LineLength = cfg.StartPosition + cfg.AccelLength + cfg.BrakeLength + cfg.LengthTolerance/2
	if err := cfg.Validate(); err != nil {
		t.Errorf("line length within the tolerance must pass: %v", err)
	}
}

func TestValidateRejectsExhaustedBrakeZone(t *testing.T) {
	cfg := Default()
	// At max speed the loop covers the whole brake zone during the delay.
	cfg.BrakeDelaySeconds = cfg.BrakeLength / cfg.MaxSpeed
	if err := cfg.Validate(); err == nil {
		t.Error("a brake delay that consumes the brake zone must fail")
	}
}

func TestEffectiveBrakeLength(t *testing.T) {
	cfg := Default()
	want := cfg.BrakeLength - cfg.MaxSpeed*cfg.BrakeDelaySeconds
	if got := cfg.EffectiveBrakeLength(); math.Abs(got-want) > 1e-9 {
		t.Errorf("effective brake length = %v, want %v", got, want)
	}
}

func TestPulseResolution(t *testing.T) {
	cfg := Default()
	want := math.Pi * cfg.PulleyDiameter / float64(cfg.PulsesPerRev)
	if got := cfg.PulseResolution(); math.Abs(got-want) > 1e-9 {
		t.Errorf("pulse resolution = %v, want %v", got, want)
	}
}

func TestReturnTimeoutUnknownAssumesFullLine(t *testing.T) {
	cfg := Default()
	full := cfg.ReturnTimeout(0, false)
	want := time.Duration(cfg.ReturnTimeoutFactor * cfg.LineLength / cfg.ReturnSpeed() * float64(time.Second))
	if full != want {
		t.Errorf("unknown position timeout = %v, want %v", full, want)
	}

	half := cfg.ReturnTimeout(cfg.LineLength/2, true)
	if half >= full {
		t.Errorf("a known shorter distance must shorten the timeout: %v >= %v", half, full)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg != Default() {
		t.Error("empty path should yield the defaults")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := []byte("max_speed = 4.0\ntick_rate = 25\n\n[pins]\nchip = \"gpiochip2\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxSpeed != 4.0 {
		t.Errorf("max_speed = %v, want 4.0", cfg.MaxSpeed)
	}
	if cfg.TickRate != 25 {
		t.Errorf("tick_rate = %v, want 25", cfg.TickRate)
	}
	if cfg.Pins.Chip != "gpiochip2" {
		t.Errorf("pins.chip = %q, want gpiochip2", cfg.Pins.Chip)
	}
	// Untouched fields keep their defaults.
	if cfg.AccelLength != Default().AccelLength {
		t.Error("unset fields must keep default values")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_speed = 50.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("an out-of-range value in the file must fail the load")
	}
}

package hardware

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/Combatjuan/orphan-maker/internal/logger"
)

// PwmChannel drives one sysfs PWM channel as the motor speed signal: a
// fixed 500 Hz carrier whose duty cycle is the commanded speed percentage.
type PwmChannel struct {
	logger  *logger.Logger
	chip    int
	channel int

	dutyFd   int
	enableFd int
}

func NewPwmChannel(chip, channel int, l *logger.Logger) *PwmChannel {
	return &PwmChannel{
		logger:   l.WithTag("pwm"),
		chip:     chip,
		channel:  channel,
		dutyFd:   -1,
		enableFd: -1,
	}
}

func (p *PwmChannel) dir() string {
	return fmt.Sprintf("%s/pwmchip%d/pwm%d", PwmChipDir, p.chip, p.channel)
}

// Init exports the channel if needed, programs the carrier period and
// enables the output at zero duty.
func (p *PwmChannel) Init() error {
	if _, err := os.Stat(p.dir()); os.IsNotExist(err) {
		export := fmt.Sprintf("%s/pwmchip%d/export", PwmChipDir, p.chip)
		if err := os.WriteFile(export, []byte(strconv.Itoa(p.channel)), 0); err != nil {
			return fmt.Errorf("failed to export PWM channel %d: %w", p.channel, err)
		}
	}

	if err := os.WriteFile(p.dir()+"/period", []byte(strconv.Itoa(PwmPeriodNs)), 0); err != nil {
		return fmt.Errorf("failed to set PWM period: %w", err)
	}

	// Keep the duty and enable files open; the control loop rewrites duty
	// every time the profiler changes it and reopening per tick is waste.
	fd, err := unix.Open(p.dir()+"/duty_cycle", unix.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open PWM duty_cycle: %w", err)
	}
	p.dutyFd = fd

	fd, err = unix.Open(p.dir()+"/enable", unix.O_WRONLY, 0)
	if err != nil {
		unix.Close(p.dutyFd)
		p.dutyFd = -1
		return fmt.Errorf("failed to open PWM enable: %w", err)
	}
	p.enableFd = fd

	if err := p.SetDuty(0); err != nil {
		return err
	}
	if err := p.writeFd(p.enableFd, 1); err != nil {
		return fmt.Errorf("failed to enable PWM: %w", err)
	}

	p.logger.Infof("Motor PWM ready: pwmchip%d/pwm%d, period %dns", p.chip, p.channel, PwmPeriodNs)
	return nil
}

// SetDuty programs the speed percentage, clamped to [0, 100].
func (p *PwmChannel) SetDuty(percent int) error {
	if p.dutyFd < 0 {
		return fmt.Errorf("PWM channel not initialized")
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	ns := PwmPeriodNs * percent / 100
	if err := p.writeFd(p.dutyFd, ns); err != nil {
		return fmt.Errorf("failed to set PWM duty %d%%: %w", percent, err)
	}
	p.logger.Debugf("Set motor duty %d%%", percent)
	return nil
}

// writeFd rewrites the whole attribute at offset zero; sysfs attributes do
// not track the file position across writes.
func (p *PwmChannel) writeFd(fd int, value int) error {
	buf := []byte(strconv.Itoa(value))
	if _, err := unix.Pwrite(fd, buf, 0); err != nil {
		return err
	}
	return nil
}

func (p *PwmChannel) Cleanup() {
	if p.dutyFd >= 0 {
		if err := p.writeFd(p.dutyFd, 0); err != nil {
			p.logger.Warnf("Failed to zero PWM duty: %v", err)
		}
		unix.Close(p.dutyFd)
		p.dutyFd = -1
	}
	if p.enableFd >= 0 {
		if err := p.writeFd(p.enableFd, 0); err != nil {
			p.logger.Warnf("Failed to disable PWM: %v", err)
		}
		unix.Close(p.enableFd)
		p.enableFd = -1
	}
	p.logger.Infof("Motor PWM released")
}

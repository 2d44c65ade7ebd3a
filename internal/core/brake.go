package core

import "time"

// brakeLine tracks how long the commanded brake state has been held.
// The pneumatic line needs a settling delay before the pads can be
// trusted to match the solenoid command, so state decisions look at
// EngagedFor rather than the raw output bit.
type brakeLine struct {
	engaged   bool
	changedAt time.Time
	tracked   bool
}

// Track records the brake command for this tick. The settle clock
// restarts whenever the commanded state flips.
func (b *brakeLine) Track(engaged bool, now time.Time) {
	if !b.tracked || engaged != b.engaged {
		b.engaged = engaged
		b.changedAt = now
		b.tracked = true
	}
}

// ConfirmedEngaged reports whether the brake has been commanded engaged
// continuously for at least delay.
func (b *brakeLine) ConfirmedEngaged(delay time.Duration, now time.Time) bool {
	return b.tracked && b.engaged && now.Sub(b.changedAt) >= delay
}

// ConfirmedReleased reports whether the brake has been commanded
// released continuously for at least delay.
func (b *brakeLine) ConfirmedReleased(delay time.Duration, now time.Time) bool {
	return b.tracked && !b.engaged && now.Sub(b.changedAt) >= delay
}

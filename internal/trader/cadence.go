package trader

import "time"

// Cadence is the two-tier polling policy of a monitoring loop: Near when
// the valuation is within 10% of the target, Far otherwise.
type Cadence struct {
	Near time.Duration
	Far  time.Duration
}

// DefaultCadence polls every 2s near the target and every 5s otherwise.
func DefaultCadence() Cadence {
	return Cadence{Near: 2 * time.Second, Far: 5 * time.Second}
}

// Next returns the delay before the next valuation check.
func (c Cadence) Next(target, current float64) time.Duration {
	if target-current <= target*0.1 {
		return c.Near
	}
	return c.Far
}

// TargetReached reports whether current triggers liquidation.
func TargetReached(target, current float64) bool {
	return current >= target
}

package dex

import (
	"time"

	"meridian/domain"
)

// CanReenter implements the stop-loss cooldown's re-entry test: price
// recovery, strong momentum after a minimum elapsed time, or the
// wall-clock fallback — whichever comes first.
func CanReenter(cd domain.StopLossCooldown, currentPrice, momentumScore, reentryRecoveryPct, reentryMinMomentum float64, now time.Time) bool {
	if currentPrice >= cd.ExitPrice*(1+reentryRecoveryPct/100) {
		return true
	}
	if momentumScore >= reentryMinMomentum && now.Sub(cd.ExitTime) >= 5*time.Minute {
		return true
	}
	if !now.Before(cd.FallbackExpiry) {
		return true
	}
	return false
}

// PruneCooldowns drops entries older than 24h, run once per tick.
func PruneCooldowns(cooldowns map[string]domain.StopLossCooldown, now time.Time) {
	for addr, cd := range cooldowns {
		if now.Sub(cd.ExitTime) > 24*time.Hour {
			delete(cooldowns, addr)
		}
	}
}

// NewCooldown builds a cooldown row for a stop_loss/trailing_stop exit.
func NewCooldown(exitPrice float64, exitTime time.Time, cooldownHours float64) domain.StopLossCooldown {
	return domain.StopLossCooldown{
		ExitPrice:      exitPrice,
		ExitTime:       exitTime,
		FallbackExpiry: exitTime.Add(time.Duration(cooldownHours * float64(time.Hour))),
	}
}

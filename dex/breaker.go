package dex

import (
	"time"

	"meridian/domain"
)

// RecordStopLoss appends a {ts, symbol} row to the rolling window and, if
// the window now holds >= lossesThreshold entries within windowHours,
// opens the breaker for pauseHours.
func RecordStopLoss(recent []domain.RecentStopLoss, symbol string, now time.Time, windowHours float64, lossesThreshold int, pauseHours float64) ([]domain.RecentStopLoss, *time.Time) {
	recent = append(recent, domain.RecentStopLoss{Timestamp: now, Symbol: symbol})

	cutoff := now.Add(-time.Duration(windowHours * float64(time.Hour)))
	count := 0
	kept := recent[:0]
	for _, r := range recent {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
			count++
		}
	}

	if count >= lossesThreshold {
		until := now.Add(time.Duration(pauseHours * float64(time.Hour)))
		return kept, &until
	}
	return kept, nil
}

// BreakerDecision is EvaluateBreaker's verdict on whether the circuit
// breaker still blocks entries, with the reason exposed for logging.
type BreakerDecision struct {
	Active bool
	Reason string
}

// EvaluateBreaker decides whether the breaker still blocks entries. Two
// early-clear conditions apply once breakerMinCooldownMinutes has elapsed
// since the breaker opened: a currently-open position recovered to
// positive P&L, or a scanned candidate with momentum >= reentryMinMomentum
// isn't already held. Time expiry clears unconditionally.
func EvaluateBreaker(
	until *time.Time,
	openedAt time.Time,
	now time.Time,
	breakerMinCooldownMinutes float64,
	anyPositionRecovered bool,
	strongUnheldCandidate bool,
) BreakerDecision {
	if until == nil || !now.Before(*until) {
		return BreakerDecision{Active: false, Reason: "expired_or_unset"}
	}

	elapsed := now.Sub(openedAt)
	if elapsed.Minutes() >= breakerMinCooldownMinutes {
		if anyPositionRecovered {
			return BreakerDecision{Active: false, Reason: "early_clear_position_recovered"}
		}
		if strongUnheldCandidate {
			return BreakerDecision{Active: false, Reason: "early_clear_strong_candidate"}
		}
	}
	return BreakerDecision{Active: true, Reason: "window_active"}
}
